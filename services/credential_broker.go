package services

import (
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const keyringServicePrefix = "autoapply"

// CredentialBroker hands out site passwords at fill time. Lookups go to the
// OS keyring first (one entry per site, plus a default entry), then to the
// APPLY_PASSWORD environment variable. Values are returned to the caller and
// never logged.
type CredentialBroker struct {
	account string
}

// NewCredentialBroker scopes keyring lookups to an account name, normally the
// applicant's email.
func NewCredentialBroker(account string) *CredentialBroker {
	return &CredentialBroker{account: account}
}

// Password implements SecretSource. site is a hostname; subdomains fall back
// to the default entry when no site-specific secret exists.
func (b *CredentialBroker) Password(site string) (string, error) {
	site = strings.ToLower(strings.TrimSpace(site))

	if site != "" {
		if secret, err := keyring.Get(keyringServicePrefix+":"+site, b.account); err == nil && secret != "" {
			return secret, nil
		}
	}
	if secret, err := keyring.Get(keyringServicePrefix, b.account); err == nil && secret != "" {
		return secret, nil
	}
	if secret := os.Getenv("APPLY_PASSWORD"); secret != "" {
		return secret, nil
	}
	return "", fmt.Errorf("no stored password for %q", site)
}

// StorePassword saves a site password in the OS keyring. An empty site sets
// the default entry.
func (b *CredentialBroker) StorePassword(site, secret string) error {
	service := keyringServicePrefix
	if site = strings.ToLower(strings.TrimSpace(site)); site != "" {
		service += ":" + site
	}
	if err := keyring.Set(service, b.account, secret); err != nil {
		return fmt.Errorf("failed to store password: %w", err)
	}
	return nil
}
