package llm

import (
	"fmt"

	"github.com/richinex/inkwell/observability"
)

// ModelSpec names the model a persona runs on.
type ModelSpec struct {
	Provider ProviderType
	Model    string
	// Temperature is left to the provider default when nil.
	Temperature *float32
}

// Temp returns a pointer for ModelSpec.Temperature.
func Temp(t float32) *float32 {
	return &t
}

// String renders s as provider/model.
func (s ModelSpec) String() string {
	model := s.Model
	if model == "" {
		model = s.Provider.DefaultModel()
	}
	return fmt.Sprintf("%s/%s", s.Provider, model)
}

// Builder returns a provider builder preconfigured from s.
func (s ModelSpec) Builder() *ProviderBuilder {
	b := NewProviderBuilder(s.Provider).Model(s.Model)
	if s.Temperature != nil {
		b.Temperature(*s.Temperature)
	}
	return b
}

// Resolver turns a model spec into a ready provider.
type Resolver func(spec ModelSpec) (Provider, error)

// EnvResolver builds providers with API keys from the environment.
// When override is non-nil every spec is redirected to that provider and its
// default model, keeping the requested temperature.
func EnvResolver(override *ProviderType, maxTokens uint32) Resolver {
	return func(spec ModelSpec) (Provider, error) {
		if override != nil && *override != spec.Provider {
			spec = ModelSpec{Provider: *override, Temperature: spec.Temperature}
		}
		b := spec.Builder()
		if maxTokens > 0 {
			b.MaxTokens(maxTokens)
		}
		return b.FromEnv()
	}
}

// StaticResolver answers every spec with the same provider.
func StaticResolver(p Provider) Resolver {
	return func(ModelSpec) (Provider, error) {
		return p, nil
	}
}

// Instrumented wraps every resolved provider with spans and metrics.
func (r Resolver) Instrumented(metrics *observability.Metrics) Resolver {
	return func(spec ModelSpec) (Provider, error) {
		p, err := r(spec)
		if err != nil {
			return nil, err
		}
		return Instrument(p, metrics), nil
	}
}
