package remote

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/core"
)

// Factory builds a client for validated credentials.
type Factory func(core.RemoteCredentials) Client

// RESTFactory returns a Factory producing RESTClients with the given timeout.
func RESTFactory(timeout time.Duration) Factory {
	return func(creds core.RemoteCredentials) Client {
		return NewRESTClient(creds, timeout)
	}
}

// Provider hands out one client per credential pair and reuses it while the
// pair is unchanged. Asking for different credentials replaces the cached client.
type Provider struct {
	factory Factory
	clients *cache.LRUCache[Client]
}

func NewProvider(factory Factory) *Provider {
	if factory == nil {
		factory = RESTFactory(DefaultTimeout)
	}
	return &Provider{
		factory: factory,
		clients: cache.NewLRUCache[Client](1),
	}
}

// Client returns the cached client for creds, building it on first use.
func (p *Provider) Client(creds core.RemoteCredentials) (Client, error) {
	if err := ValidateCredentials(creds); err != nil {
		return nil, err
	}
	key := credentialKey(creds)
	if c, ok := p.clients.Get(key); ok {
		return c, nil
	}
	c := p.factory(creds)
	p.clients.Set(key, c)
	return c, nil
}

// Invalidate drops the cached client.
func (p *Provider) Invalidate() {
	p.clients.Purge()
}

// credentialKey avoids keeping the raw access key as a map key.
func credentialKey(creds core.RemoteCredentials) string {
	sum := sha256.Sum256([]byte(creds.URL + "\x00" + creds.Key))
	return hex.EncodeToString(sum[:])
}
