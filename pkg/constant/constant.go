package constant

const (
	DefaultUserRoleID   = 1
	DefaultUserRoleName = "user"
	AdminRoleName       = "admin"

	DefaultTokenType = "Bearer"
)

// Revocation reasons recorded in the blacklist.
const (
	RevocationReasonLogout            = "LOGOUT"
	RevocationReasonPasswordChanged   = "PASSWORD_CHANGED"
	RevocationReasonPasswordReset     = "PASSWORD_RESET"
	RevocationReasonSecurityViolation = "SECURITY_VIOLATION"
	RevocationReasonAdminAction       = "ADMIN_ACTION"
)

// Security event types emitted to the audit sink.
const (
	EventLoginSuccess       = "LOGIN_SUCCESS"
	EventLoginFailure       = "LOGIN_FAILURE"
	EventLoginBlocked       = "LOGIN_BLOCKED"
	EventAccountLocked      = "ACCOUNT_LOCKED"
	EventLockoutEscalated   = "LOCKOUT_ESCALATED"
	EventAccountUnlocked    = "ACCOUNT_UNLOCKED"
	EventLogout             = "LOGOUT"
	EventTokenRefreshed     = "TOKEN_REFRESHED"
	EventTokenRevoked       = "TOKEN_REVOKED"
	EventSessionCreated     = "SESSION_CREATED"
	EventSessionsRevoked    = "SESSIONS_REVOKED"
	EventPasswordChanged    = "PASSWORD_CHANGED"
	EventResetRequested     = "PASSWORD_RESET_REQUESTED"
	EventResetConsumed      = "PASSWORD_RESET_CONSUMED"
	EventResetDenied        = "PASSWORD_RESET_DENIED"
	EventResetBlocked       = "PASSWORD_RESET_BLOCKED"
	EventSuspiciousReset    = "PASSWORD_RESET_SUSPICIOUS"
	EventPersistenceFailure = "PERSISTENCE_FAILURE"
)

// Login failure reasons stored on attempt records.
const (
	FailureReasonBadCredentials = "bad_credentials"
	FailureReasonThrottled      = "throttled"
	FailureReasonLocked         = "account_locked"
	FailureReasonInactive       = "account_inactive"
)
