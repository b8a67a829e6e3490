package audit

import "session-control-plane/internal/session/domain"

// Audit actions emitted by the session core and the auth orchestrator.
// Resource is "session" for all of them.
const (
	ActionLogin          = "login"
	ActionLoginFailure   = "login_failure"
	ActionLogout         = "logout"
	ActionLogoutAll      = "logout_all"
	ActionSessionCreated = "session_created"
	ActionReplayDetected = "replay_detected"
	ActionReuseDetected  = "reuse_detected"
	ActionRevoked        = "session_revoked"
	ActionCleanup        = "session_cleanup"
)

// ResourceSession is the resource name for all session-lifecycle events.
const ResourceSession = "session"

// ActionForRevocation maps a revocation reason to its audit action.
// Security violations get their own actions so alerting can key on them.
func ActionForRevocation(reason domain.RevocationReason) string {
	switch reason {
	case domain.ReasonReplayAttack:
		return ActionReplayDetected
	case domain.ReasonJTIReuse:
		return ActionReuseDetected
	case domain.ReasonLogoutAll:
		return ActionLogoutAll
	case domain.ReasonUserLogout:
		return ActionLogout
	default:
		return ActionRevoked
	}
}
