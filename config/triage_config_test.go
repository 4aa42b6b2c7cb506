package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("AI_PROVIDER", "")
	t.Setenv("LLM_TIMEOUT_SEC", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderGemini, cfg.AIProvider)
	assert.Equal(t, 20*time.Second, cfg.LLMTimeout())
	assert.Equal(t, 3, cfg.WorkerMaxRetries)
	assert.Equal(t, 60*time.Second, cfg.JobTimeout())
}

func TestLoadRequiresProviderKey(t *testing.T) {
	t.Setenv("AI_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"openai ok", Config{AIProvider: ProviderOpenAI, OpenAIAPIKey: "k", LLMTimeoutSec: 5, WorkerCount: 1}, ""},
		{"openai missing key", Config{AIProvider: ProviderOpenAI, LLMTimeoutSec: 5, WorkerCount: 1}, "OPENAI_API_KEY"},
		{"unknown provider", Config{AIProvider: "claude", LLMTimeoutSec: 5, WorkerCount: 1}, "unsupported AI_PROVIDER"},
		{"bad timeout", Config{AIProvider: ProviderGemini, GeminiAPIKey: "k", WorkerCount: 1}, "LLM_TIMEOUT_SEC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetEnvSliceTrims(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "http://a, http://b ,")
	assert.Equal(t, []string{"http://a", "http://b"}, getEnvSlice("ALLOWED_ORIGINS", nil))
}
