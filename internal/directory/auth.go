package directory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// KeyringService is the OS keyring service that holds directory client secrets
const KeyringService = "nearby-sync"

// ErrNoClientSecret is returned when no client secret can be found
var ErrNoClientSecret = errors.New("no directory client secret configured")

// Credentials are the OAuth2 client credentials used to call the directory
type Credentials struct {
	TokenURL string
	ClientID string
	Scopes   []string
	// ClientSecretFile holds the secret. When empty the OS keyring entry for
	// ClientID is used.
	ClientSecretFile string
}

// ClientSecret resolves the client secret
func (c Credentials) ClientSecret() (string, error) {
	if c.ClientSecretFile != "" {
		data, err := os.ReadFile(c.ClientSecretFile)
		if err != nil {
			return "", fmt.Errorf("failed to read client secret: %w", err)
		}
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", fmt.Errorf("%w: %s is empty", ErrNoClientSecret, c.ClientSecretFile)
		}
		return secret, nil
	}

	secret, err := keyring.Get(KeyringService, c.ClientID)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("%w: no keyring entry for client %q", ErrNoClientSecret, c.ClientID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read keyring: %w", err)
	}
	return secret, nil
}

// TokenSource returns a caching token source for the client credentials
// grant. ctx only carries an optional oauth2.HTTPClient for token requests.
func (c Credentials) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	secret, err := c.ClientSecret()
	if err != nil {
		return nil, err
	}
	cfg := &clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: secret,
		TokenURL:     c.TokenURL,
		Scopes:       c.Scopes,
	}
	return cfg.TokenSource(ctx), nil
}

// StoreClientSecret saves secret in the OS keyring for clientID
func StoreClientSecret(clientID, secret string) error {
	if clientID == "" {
		return fmt.Errorf("client id cannot be empty")
	}
	if secret == "" {
		return fmt.Errorf("client secret cannot be empty")
	}
	if err := keyring.Set(KeyringService, clientID, secret); err != nil {
		return fmt.Errorf("failed to write keyring: %w", err)
	}
	return nil
}

// DeleteClientSecret removes the keyring entry for clientID. A missing entry
// is not an error.
func DeleteClientSecret(clientID string) error {
	err := keyring.Delete(KeyringService, clientID)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete keyring entry: %w", err)
	}
	return nil
}
