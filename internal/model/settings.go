package model

import (
	"strings"
	"time"
)

// PolicySettings customizes the content policy applied to restricted executions.
// Empty fields mean the built-in defaults.
type PolicySettings struct {
	RestrictedCommands      []string
	RestrictedModules       []string
	DangerousPatterns       []string
	EncodedPayloadMinLength int
	ObfuscationChar         rune
	ObfuscationThreshold    int
}

// EngineSettings are the operator settings of the execution engine.
// Zero values mean the engine defaults.
type EngineSettings struct {
	MaxConcurrent      int
	MaxTranscriptBytes int
	MaxTimeout         time.Duration
	DefaultTimeout     time.Duration
	KillGrace          time.Duration
	Interpreter        []string
	EnvPassthrough     []string
	Policy             PolicySettings
	// RoleTrust maps caller roles to the trust level they get by default.
	RoleTrust map[string]TrustLevel
}

// TrustForRole returns the default trust level of a caller role.
// Unknown roles are always restricted.
func (e EngineSettings) TrustForRole(role string) TrustLevel {
	if t, ok := e.RoleTrust[strings.ToLower(role)]; ok {
		return t
	}
	return TrustLevelRestricted
}
