// Package base holds the configuration fields shared by the concrete
// provider adapters (in this module, the openai adapter, which embeds
// Config), grounded on the prior art's config.ModelConfig shape.
// provider.Provider itself exposes only ID(); Config is not reachable
// through that interface.
package base

// Config is the provider-agnostic subset of a model's configuration.
type Config struct {
	Type    string
	Model   string
	BaseURL string

	Temperature      *float64
	MaxTokens        *int64
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64

	ParallelToolCalls *bool
}

// ID returns the identifier used for pricing lookups (pkg/tokens) and cache
// keys (pkg/rag/embed): "<type>/<model>" when both are set, else whichever
// is non-empty.
func (c Config) ID() string {
	switch {
	case c.Type != "" && c.Model != "":
		return c.Type + "/" + c.Model
	case c.Model != "":
		return c.Model
	default:
		return c.Type
	}
}
