package core

import (
	"fmt"
	"strings"
	"sync"
)

// ProviderRegistry is the default AuthenticatorRegistry: a concurrent map
// of provider key to authenticator.
type ProviderRegistry struct {
	mu             sync.RWMutex
	authenticators map[string]Authenticator
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		authenticators: make(map[string]Authenticator),
	}
}

func (r *ProviderRegistry) Register(provider string, authenticator Authenticator) error {
	if r == nil {
		return fmt.Errorf("core: provider registry is not configured")
	}
	provider = strings.TrimSpace(strings.ToLower(provider))
	if provider == "" {
		return fmt.Errorf("core: provider key is required")
	}
	if authenticator == nil {
		return fmt.Errorf("core: authenticator is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.authenticators[provider]; exists {
		return fmt.Errorf("core: provider %q already registered", provider)
	}
	r.authenticators[provider] = authenticator
	return nil
}

func (r *ProviderRegistry) Resolve(provider string) (Authenticator, error) {
	if r == nil {
		return nil, fmt.Errorf("core: provider registry is not configured")
	}
	provider = strings.TrimSpace(strings.ToLower(provider))

	r.mu.RLock()
	defer r.mu.RUnlock()
	if authenticator, ok := r.authenticators[provider]; ok {
		return authenticator, nil
	}
	if authenticator, ok := r.authenticators[defaultProvider]; ok {
		return authenticator, nil
	}
	return nil, fmt.Errorf("core: provider %q is not registered", provider)
}

func (r *ProviderRegistry) Providers() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.authenticators))
	for key := range r.authenticators {
		keys = append(keys, key)
	}
	return keys
}

var _ AuthenticatorRegistry = (*ProviderRegistry)(nil)
