/*
Package services exposes the participant registry and the competition
coordinator over HTTP.

# Registry

HTTPRegistry wraps an identity.Registry:

  - POST /register      create an account
  - POST /sign-in       obtain a token for an audience
  - POST /verify-token  verify a token; the body is a protocol.Signed request
    and the recovered signer key is the caller the token audience must match

# Coordinator

HTTPCoordinator wraps a competition.Coordinator:

  - GET  /public-state      public state plus open/closed at request time
  - GET  /identity          the audience participants sign in for
  - GET  /events            public facts, when the audit sink is readable
  - POST /submit            submit an encrypted model with a token
  - POST /begin-evaluation  release evaluation secrets to an attested program
  - POST /announce-winner   record the winner

Request time is sampled once from an injected clock as a request arrives.

# Errors

Failures are returned as {"error": code, "message": text}:

	username_taken                    409
	permission_denied                 403
	invalid_token                     400
	submissions_closed                410
	participant_registry_unreachable  502
	invalid_request                   400

Client and HTTPRegistryClient decode these back into *APIError values that
unwrap to the matching protocol error kind. HTTPRegistryClient signs its
verification requests with the coordinator key and reports connection
failures, 5xx responses and an open circuit as
protocol.ErrRegistryUnreachable. It does not retry.
*/
package services
