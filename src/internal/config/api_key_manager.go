package config

import (
	"math/rand"
	"sync"
	"time"
)

// APIKeyManager rotates explorer API keys. A nil manager is valid and yields "".
type APIKeyManager struct {
	apiKeys []string
	current int
	mutex   sync.Mutex
}

func NewAPIKeyManager(apiKeys []string, fallbackKey string) *APIKeyManager {
	validKeys := make([]string, 0, len(apiKeys)+1)
	for _, key := range apiKeys {
		if key != "" {
			validKeys = append(validKeys, key)
		}
	}
	if len(validKeys) == 0 && fallbackKey != "" {
		validKeys = append(validKeys, fallbackKey)
	}
	if len(validKeys) == 0 {
		return nil
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &APIKeyManager{
		apiKeys: validKeys,
		current: rng.Intn(len(validKeys)),
	}
}

func (m *APIKeyManager) GetKey() string {
	if m == nil {
		return ""
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.apiKeys[m.current]
}

// GetNextKey advances the rotation, used after a rate-limit response.
func (m *APIKeyManager) GetNextKey() string {
	if m == nil {
		return ""
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.current = (m.current + 1) % len(m.apiKeys)
	return m.apiKeys[m.current]
}

func (m *APIKeyManager) GetKeyCount() int {
	if m == nil {
		return 0
	}
	return len(m.apiKeys)
}
