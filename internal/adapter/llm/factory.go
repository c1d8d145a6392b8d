package llm

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/xiaot623/conclave/internal/domain"
)

const (
	// EnvGogoMode is the environment variable name for mode selection.
	EnvGogoMode = "GOGO_MODE"
	// ModeMock indicates mock mode should be used.
	ModeMock = "MOCK"
)

// Backend names accepted by NewResponder.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
)

// MockMode reports whether GOGO_MODE=MOCK is set.
func MockMode() bool {
	return strings.EqualFold(os.Getenv(EnvGogoMode), ModeMock)
}

// NewResponder creates a responder for model on the given backend.
// If GOGO_MODE=MOCK, returns a MockClient regardless of backend.
func NewResponder(backend, baseURL, apiKey, model string) (Responder, error) {
	if MockMode() {
		return NewMockClient(model), nil
	}

	switch strings.ToLower(backend) {
	case BackendOllama, "":
		return NewOllamaClient(baseURL, model), nil
	case BackendOpenAI:
		return NewOpenAIClient(baseURL, apiKey, model), nil
	default:
		return nil, fmt.Errorf("unknown inference backend %q", backend)
	}
}

// NewRegistryFromModels builds a registry with one responder per distinct model.
func NewRegistryFromModels(backend, baseURL, apiKey string, models map[domain.RoleName]string) (*Registry, error) {
	if MockMode() {
		log.Println("GOGO_MODE=MOCK detected, using mock responders")
	}

	byModel := make(map[string]Responder)
	responders := make(map[domain.RoleName]Responder, len(models))
	for role, model := range models {
		r, ok := byModel[model]
		if !ok {
			var err error
			r, err = NewResponder(backend, baseURL, apiKey, model)
			if err != nil {
				return nil, fmt.Errorf("responder for %s: %w", role, err)
			}
			byModel[model] = r
		}
		responders[role] = r
	}
	return NewRegistry(responders), nil
}
