package auth

import "errors"

// Sentinel errors for token validation. The HTTP layer maps both to 401 but
// uses the distinction to tell the frontend whether re-login is needed
// because the session aged out or because the token is garbage.
var (
	// ErrTokenExpired indicates the token was well-formed and correctly
	// signed but past its expiry.
	ErrTokenExpired = errors.New("auth: token expired")

	// ErrTokenInvalid indicates the token failed parsing or signature
	// verification.
	ErrTokenInvalid = errors.New("auth: token invalid")

	// ErrBadCredentials indicates a failed password check at login.
	ErrBadCredentials = errors.New("auth: bad credentials")
)
