package llm

// Fixed sampling parameters applied to every chat completion request,
// regardless of provider. Conversational support responses need to stay
// consistent and low-variance rather than creative, so these are not
// exposed as per-request overrides.
const (
	Temperature      = 0.3
	TopP             = 0.9
	FrequencyPenalty = 0.1
	PresencePenalty  = 0.1
)
