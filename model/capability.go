// Package model provides capability-based model selection for review tasks.
// Instead of hardcoding model names, callers specify capabilities (discovery,
// verification, guard) and the registry resolves them to available models
// with fallback chains.
package model

// Capability represents a semantic capability for model selection.
// Instead of specifying "claude-sonnet", callers specify "verification"
// or "guard".
type Capability string

const (
	// CapabilityDiscovery is for locating observability-relevant files in
	// a repository tree.
	CapabilityDiscovery Capability = "discovery"

	// CapabilityExtraction is for extracting instrumentation details from
	// source files.
	CapabilityExtraction Capability = "extraction"

	// CapabilityVerification is for tool-using verification of detected
	// gaps against the codebase.
	CapabilityVerification Capability = "verification"

	// CapabilityEnrichment is for narrative summaries, gap rationale, and
	// recommendations.
	CapabilityEnrichment Capability = "enrichment"

	// CapabilityGuard is for prompt injection screening of user input.
	CapabilityGuard Capability = "guard"

	// CapabilityFast is for quick responses, simple tasks.
	CapabilityFast Capability = "fast"
)

// PhaseCapabilities maps review pipeline phases to their default
// capability. Used when no explicit capability or model is specified.
var PhaseCapabilities = map[string]Capability{
	"discovery":    CapabilityDiscovery,
	"extraction":   CapabilityExtraction,
	"verification": CapabilityVerification,
	"enrichment":   CapabilityEnrichment,
	"guard":        CapabilityGuard,
}

// CapabilityForPhase returns the default capability for a pipeline phase.
// Returns CapabilityFast as fallback for unknown phases.
func CapabilityForPhase(phase string) Capability {
	if cap, ok := PhaseCapabilities[phase]; ok {
		return cap
	}
	return CapabilityFast
}

// IsValid checks if a capability string is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityDiscovery, CapabilityExtraction, CapabilityVerification,
		CapabilityEnrichment, CapabilityGuard, CapabilityFast:
		return true
	}
	return false
}

// String returns the string representation of the capability.
func (c Capability) String() string {
	return string(c)
}

// ParseCapability converts a string to a Capability, returning empty for invalid values.
func ParseCapability(s string) Capability {
	cap := Capability(s)
	if cap.IsValid() {
		return cap
	}
	return ""
}
