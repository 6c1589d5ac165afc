package config

import "context"

// SecretProvider resolves secret values by identifier. SSMProvider serves
// deployed environments; EnvVarProvider serves local runs and tests.
type SecretProvider interface {
	// GetParametersBatch returns a map of key -> plaintext for every key it
	// could resolve. Missing keys are omitted rather than reported as errors.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
