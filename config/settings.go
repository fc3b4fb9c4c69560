// Package config loads inkwell settings.
//
// Two layers:
// - Settings: per-run model and loop limits read from the environment
// - App: server, session store, search, retry and telemetry settings read
//   from an optional file with INKWELL_ environment overrides
//
// Information Hiding:
// - Environment parsing and defaults
// - Provider name aliases and per-provider env variable names

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/richinex/inkwell/llm"
)

// Settings holds the per-run model and loop limits.
type Settings struct {
	LLM   LLMConfig
	Agent AgentConfig
}

// LLMConfig selects the provider that overrides every persona's model.
type LLMConfig struct {
	Provider    llm.ProviderType
	Model       string
	MaxTokens   uint32
	Temperature float64
}

// AgentConfig bounds agent and team loops.
type AgentConfig struct {
	MaxIterations int
	// MaxOrchestrationSteps bounds team coordination steps.
	MaxOrchestrationSteps int
	MaxSubGoals           int
}

// ModelEnvVar is the variable that overrides a provider's default model,
// e.g. GEMINI_MODEL.
func ModelEnvVar(p llm.ProviderType) string {
	return strings.ToUpper(p.String()) + "_MODEL"
}

// New reads settings for provider from the environment.
// Errors on an unknown provider or a malformed numeric variable.
func New(provider string) (Settings, error) {
	p, err := llm.ParseProviderType(provider)
	if err != nil {
		return Settings{}, err
	}

	maxTokens, err := getEnvUint32("LLM_MAX_TOKENS", 4096)
	if err != nil {
		return Settings{}, err
	}
	temperature, err := getEnvFloat64("LLM_TEMPERATURE", 0.7)
	if err != nil {
		return Settings{}, err
	}
	maxIterations, err := getEnvInt("AGENT_MAX_ITERATIONS", 10)
	if err != nil {
		return Settings{}, err
	}
	maxOrchestrationSteps, err := getEnvInt("AGENT_MAX_ORCHESTRATION_STEPS", 10)
	if err != nil {
		return Settings{}, err
	}
	maxSubGoals, err := getEnvInt("AGENT_MAX_SUB_GOALS", 10)
	if err != nil {
		return Settings{}, err
	}

	return Settings{
		LLM: LLMConfig{
			Provider:    p,
			Model:       ModelFor(p),
			MaxTokens:   maxTokens,
			Temperature: temperature,
		},
		Agent: AgentConfig{
			MaxIterations:         maxIterations,
			MaxOrchestrationSteps: maxOrchestrationSteps,
			MaxSubGoals:           maxSubGoals,
		},
	}, nil
}

// Resolver returns a model resolver that redirects every persona to the
// configured provider.
func (s Settings) Resolver() llm.Resolver {
	p := s.LLM.Provider
	return llm.EnvResolver(&p, s.LLM.MaxTokens)
}

// APIKeyFor returns the API key for provider from the environment.
func APIKeyFor(provider string) (string, error) {
	p, err := llm.ParseProviderType(provider)
	if err != nil {
		return "", err
	}
	key := os.Getenv(p.EnvVar())
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", p.EnvVar())
	}
	return key, nil
}

// ModelFor returns the model for p, preferring its *_MODEL variable.
func ModelFor(p llm.ProviderType) string {
	if val := os.Getenv(ModelEnvVar(p)); val != "" {
		return val
	}
	return p.DefaultModel()
}

// SupportedProviders returns the canonical provider names.
func SupportedProviders() []string {
	result := make([]string, 0, len(llm.AllProviders))
	for _, p := range llm.AllProviders {
		result = append(result, p.String())
	}
	return result
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}
