// Package attestation decides whether an AttestationReport proves that its
// sender is a specific evaluation program.
//
// The coordinator always compares the claimed measurement against the expected
// program hash. What a Verifier adds is evidence that the claim is genuine:
//
//   - Unverified accepts every report. The signature field is never checked,
//     so anyone who knows the (public) program hash can pose as the evaluator.
//     This matches the behaviour of the original deployment and is the default.
//   - QuoteVerifier treats the signature field as a raw TEE quote. The quote
//     must verify with the configured TEEProvider, bind the coordinator identity
//     and the claimed measurement in its report data, and carry the claimed
//     measurement in its MRTD register. Optionally the remaining registers are
//     checked against published measurement sets.
package attestation
