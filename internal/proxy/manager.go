package proxy

import (
	"math/rand"
	"sync"
)

// Manager rotates outbound proxies and user agents for fetches whose rule
// options ask for them.
type Manager struct {
	proxies    []string
	userAgents []string
	mu         sync.Mutex
	proxyIndex int
	rnd        *rand.Rand
}

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// NewManager builds a rotation manager. An empty userAgents list falls back
// to a small built-in set; an empty proxies list disables proxying.
func NewManager(proxies, userAgents []string, seed int64) *Manager {
	if len(userAgents) == 0 {
		userAgents = defaultUserAgents
	}
	return &Manager{
		proxies:    proxies,
		userAgents: userAgents,
		rnd:        rand.New(rand.NewSource(seed)),
	}
}

// GetProxy returns the next proxy URL, rotating sequentially, or "" when no
// proxies are configured.
func (m *Manager) GetProxy() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.proxies) == 0 {
		return ""
	}
	proxy := m.proxies[m.proxyIndex]
	m.proxyIndex = (m.proxyIndex + 1) % len(m.proxies)
	return proxy
}

// GetUserAgent returns a random user agent string.
func (m *Manager) GetUserAgent() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userAgents[m.rnd.Intn(len(m.userAgents))]
}
