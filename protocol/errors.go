package protocol

import "errors"

var (
	// ErrUsernameTaken is returned when registering a name that already exists.
	ErrUsernameTaken = errors.New("username taken")
	// ErrPermissionDenied covers bad credentials, token audience or signature
	// mismatches, and failed evaluation-program authorization.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidToken is returned for tokens that cannot be parsed.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSubmissionsClosed is returned for submissions after the deadline.
	ErrSubmissionsClosed = errors.New("submissions closed")
	// ErrRegistryUnreachable is returned when a token could not be verified
	// because the participant registry did not answer. Callers may retry.
	ErrRegistryUnreachable = errors.New("participant registry unreachable")
)

// Wire codes for error kinds.
const (
	CodeUsernameTaken       = "username_taken"
	CodePermissionDenied    = "permission_denied"
	CodeInvalidToken        = "invalid_token"
	CodeSubmissionsClosed   = "submissions_closed"
	CodeRegistryUnreachable = "participant_registry_unreachable"
)

var kinds = []struct {
	code string
	err  error
}{
	{CodeUsernameTaken, ErrUsernameTaken},
	{CodePermissionDenied, ErrPermissionDenied},
	{CodeInvalidToken, ErrInvalidToken},
	{CodeSubmissionsClosed, ErrSubmissionsClosed},
	{CodeRegistryUnreachable, ErrRegistryUnreachable},
}

// Code returns the wire code of a known error kind, or "" for anything else.
func Code(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return ""
}

// ErrorFromCode maps a wire code back to its error kind.
func ErrorFromCode(code string) (error, bool) {
	for _, k := range kinds {
		if k.code == code {
			return k.err, true
		}
	}
	return nil, false
}
