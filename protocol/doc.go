// Package protocol defines the data model shared by the account registry and
// the competition coordinator.
//
// # Data Model
//
//   - AuthenticatedData: a public locator plus the expected SHA-256 hash of the
//     referenced content. For the evaluation program the hash is the expected
//     TEE measurement.
//   - EncryptedData: a locator for off-system ciphertext plus the AES-256-GCM
//     key material needed to open it. The services move envelopes between
//     authorized parties and never decrypt them.
//   - AttestationReport: a measurement claimed by a remote program and the
//     evidence (signature or quote) backing it.
//   - RequestContext: the caller identity and call-entry timestamp that every
//     operation receives explicitly.
//
// # Service Identity
//
// Services identify each other by hex-encoded Ed25519 public keys. Calls between
// services are wrapped in Signed envelopes, and the recovered signer key is the
// caller identity the receiving service authorizes against.
//
// # Errors
//
// All error kinds are sentinel values compared with errors.Is. Each kind has a
// stable wire code (see Code and ErrorFromCode) so typed results survive
// transport between services.
package protocol
