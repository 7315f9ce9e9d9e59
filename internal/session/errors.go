package session

import "errors"

var (
	// ErrNoSession is what callers observe once a session has been cleared for any reason.
	ErrNoSession = errors.New("no active session")
	// ErrSessionExpired and ErrSessionInactive are control signals of the liveness check.
	// The manager absorbs them by clearing the session.
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionInactive = errors.New("session inactive")
	// ErrRefreshFailed covers a missing refresh token, a transport error, a timeout and
	// any rejection by the auth collaborator.
	ErrRefreshFailed = errors.New("token refresh failed")
	// ErrVerifyFailed is returned when the auth collaborator rejects a 2FA code.
	ErrVerifyFailed = errors.New("two-factor verification failed")
	// ErrSuspiciousActivity is returned when the logout policy forced a logout.
	ErrSuspiciousActivity = errors.New("suspicious activity")
	// ErrSessionChanged means the session was cleared or replaced while a refresh was in
	// flight; the refresh result was dropped.
	ErrSessionChanged = errors.New("session changed during refresh")
	// ErrInvalidCredentials is returned by CreateSession without an access token.
	ErrInvalidCredentials = errors.New("invalid session credentials")
)
