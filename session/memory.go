package session

import "sync"

type memoryStore struct {
	mu   sync.RWMutex
	pair Pair
}

// NewMemoryStore returns a Store that keeps the pair in process memory.
func NewMemoryStore() Store {
	return &memoryStore{}
}

// NewMemoryStoreWith returns an in-memory Store seeded with pair.
func NewMemoryStoreWith(pair Pair) Store {
	return &memoryStore{pair: pair}
}

func (m *memoryStore) Get() (Pair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pair, nil
}

func (m *memoryStore) Set(pair Pair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = pair
	return nil
}

func (m *memoryStore) SetAccessToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair.AccessToken = token
	return nil
}

func (m *memoryStore) SetRefreshToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair.RefreshToken = token
	return nil
}

func (m *memoryStore) ReplaceTokens(expect Pair, accessToken, refreshToken string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.pair.sameSession(expect) {
		return false, nil
	}
	m.pair = m.pair.refreshed(accessToken, refreshToken)
	return true, nil
}

func (m *memoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = Pair{}
	return nil
}

func (m *memoryStore) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pair.AccessToken != ""
}
