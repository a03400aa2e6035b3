package config

// ResearchDepth controls how much context the research stage asks for.
type ResearchDepth string

const (
	// ResearchDepthShallow asks for a quick summary only
	ResearchDepthShallow ResearchDepth = "shallow"
	// ResearchDepthMedium asks for relevant APIs and pitfalls
	ResearchDepthMedium ResearchDepth = "medium"
	// ResearchDepthDeep asks for prior art, edge cases and references
	ResearchDepthDeep ResearchDepth = "deep"
)

// IsValid checks if the research depth is valid
func (d ResearchDepth) IsValid() bool {
	return d == ResearchDepthShallow || d == ResearchDepthMedium || d == ResearchDepthDeep
}

// APIBackend names the hosted API a provider maps to when a key is present.
type APIBackend string

const (
	// APIBackendOpenAI is the OpenAI chat completions API
	APIBackendOpenAI APIBackend = "openai"
	// APIBackendGoogleAI is the Google Gemini API
	APIBackendGoogleAI APIBackend = "googleai"
	// APIBackendAnthropic is the Anthropic messages API
	APIBackendAnthropic APIBackend = "anthropic"
)

// IsValid checks if the API backend is valid
func (b APIBackend) IsValid() bool {
	return b == APIBackendOpenAI || b == APIBackendGoogleAI || b == APIBackendAnthropic
}
