package audit

import "github.com/jcarweb/repuestospro-sub005/internal/audit/domain"

// Reasons a session is cleared with. The security-driven ones are recorded as
// suspicious_activity rather than logout.
const (
	ReasonUserLogout         = "user_logout"
	ReasonReplaced           = "replaced"
	ReasonInactivity         = "inactivity"
	ReasonExpired            = "expired"
	ReasonRefreshFailed      = "refresh_failed"
	ReasonSuspiciousActivity = "suspicious_activity"
	ReasonTokenRevoked       = "token_revoked"
	ReasonTampering          = "tampering"
	ReasonCorruptSession     = "corrupt_session"
)

// ReasonCorruptHistory marks the first event of a trail that replaced an unreadable
// history.
const ReasonCorruptHistory = "corrupt_history"


var securityReasons = map[string]bool{
	ReasonRefreshFailed:       true,
	ReasonSuspiciousActivity:  true,
	ReasonTokenRevoked:        true,
	ReasonTampering:           true,
	ReasonCorruptSession:      true,
	ReasonTooManyFailedLogins: true,
	ReasonTooManyDevices:      true,
}

// IsSecurityReason reports whether reason marks a protective clear.
func IsSecurityReason(reason string) bool {
	return securityReasons[reason]
}

// ClearEventType maps a clear reason to the event type recorded for it.
func ClearEventType(reason string) domain.EventType {
	if IsSecurityReason(reason) {
		return domain.EventSuspiciousActivity
	}
	return domain.EventLogout
}
