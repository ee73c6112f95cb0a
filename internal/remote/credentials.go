package remote

import (
	"net/url"
	"strings"

	"fintrack/internal/core"
)

// MinKeyLength is the shortest access key accepted. Real project keys are
// long signed tokens; this is a plausibility check, not authentication.
const MinKeyLength = 50

var hostedSuffixes = []string{".supabase.co", ".supabase.in"}

// ValidateCredentials checks the shape of a credential pair without touching
// the network. Failures are *core.ConfigurationError.
func ValidateCredentials(creds core.RemoteCredentials) error {
	raw := strings.TrimSpace(creds.URL)
	if raw == "" {
		return &core.ConfigurationError{Field: "url", Reason: "project URL is required"}
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Hostname() == "" {
		return &core.ConfigurationError{Field: "url", Reason: "must look like https://<project>.supabase.co or a localhost URL"}
	}
	if !allowedHost(u.Hostname()) {
		return &core.ConfigurationError{Field: "url", Reason: "host " + u.Hostname() + " is not a hosted project or localhost"}
	}

	key := strings.TrimSpace(creds.Key)
	if key == "" {
		return &core.ConfigurationError{Field: "key", Reason: "access key is required"}
	}
	if len(key) < MinKeyLength {
		return &core.ConfigurationError{Field: "key", Reason: "access key is too short to be a project key"}
	}
	return nil
}

func allowedHost(host string) bool {
	host = strings.ToLower(host)
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}
	for _, suffix := range hostedSuffixes {
		if strings.HasSuffix(host, suffix) && len(host) > len(suffix) {
			return true
		}
	}
	return false
}

// CredentialStore persists the credential pair.
type CredentialStore interface {
	Credentials() (core.RemoteCredentials, bool)
	SaveCredentials(core.RemoteCredentials)
	ClearCredentials()
}

// CredentialManager validates credentials before persisting them.
type CredentialManager struct {
	store CredentialStore
}

func NewCredentialManager(store CredentialStore) *CredentialManager {
	return &CredentialManager{store: store}
}

func (m *CredentialManager) HasCredentials() bool {
	_, ok := m.store.Credentials()
	return ok
}

func (m *CredentialManager) Credentials() (core.RemoteCredentials, bool) {
	return m.store.Credentials()
}

// Save validates and persists creds, trimmed.
func (m *CredentialManager) Save(creds core.RemoteCredentials) error {
	if err := ValidateCredentials(creds); err != nil {
		return err
	}
	m.store.SaveCredentials(core.RemoteCredentials{
		URL: strings.TrimRight(strings.TrimSpace(creds.URL), "/"),
		Key: strings.TrimSpace(creds.Key),
	})
	return nil
}

func (m *CredentialManager) ClearCredentials() {
	m.store.ClearCredentials()
}
