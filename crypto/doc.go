// Package crypto provides the cryptographic primitives used outside the
// trust protocol itself:
//
//   - Ed25519 keys and signatures identifying services (see protocol.Signed)
//   - AES-256-GCM envelopes for submissions and test datasets
//   - SHA-256 digests for authenticated dataset and program descriptors
//
// The coordinator never opens envelopes. Sealing happens on the participant's
// machine and opening inside the attested evaluation program.
package crypto
