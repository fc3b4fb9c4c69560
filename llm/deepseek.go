// DeepSeek Provider implementation on the OpenAI-compatible client.
//
// Information Hiding:
// - Base URL of the DeepSeek API
// - DeepSeek accepts json_object but not json_schema, so schemas travel in the prompt

package llm

import (
	openai "github.com/sashabaranov/go-openai"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// NewDeepSeekProvider creates a provider for the DeepSeek API.
func NewDeepSeekProvider(apiKey, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	return NewDeepSeekProviderWithBaseURL(apiKey, deepseekBaseURL, model, maxTokens, temperature)
}

// NewDeepSeekProviderWithBaseURL creates a DeepSeek provider against a custom endpoint.
func NewDeepSeekProviderWithBaseURL(apiKey, baseURL, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL
	return newOpenAICompatible("deepseek", config, model, maxTokens, temperature, false)
}
