// Package identity implements the account registry: it stores credentials,
// issues audience-bound tokens on sign-in, and verifies tokens on behalf of
// the service they were issued for.
package identity
