package domain

// Policy is one Rego module evaluated by the logout policy engine.
type Policy struct {
	Name    string
	Rules   string
	Enabled bool
}

// LogoutInput is what the logout policy decides on.
type LogoutInput struct {
	Suspicious      bool
	FailedLogins    int
	DistinctDevices int
	Reasons         []string
	SessionActive   bool
}

// LogoutDecision is the policy outcome.
type LogoutDecision struct {
	ForceLogout bool
	// Reason is recorded on the forced logout. Empty when ForceLogout is false.
	Reason string
}
