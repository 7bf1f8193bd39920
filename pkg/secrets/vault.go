// Package secrets resolves secrets from HashiCorp Vault with an environment
// variable fallback.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"provider-messaging/backend/pkg/cache"
	"provider-messaging/backend/pkg/logger"

	vault "github.com/hashicorp/vault/api"
)

var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrNoVaultToken   = errors.New("no vault token provided")
	ErrNoVaultAddress = errors.New("no vault address provided")
)

// Manager provides access to secrets
type Manager interface {
	GetSecret(ctx context.Context, key string) (string, error)
	GetSecretWithDefault(ctx context.Context, key, defaultValue string) string
}

// VaultConfig holds configuration for the Vault client
type VaultConfig struct {
	Enabled    bool
	Address    string
	Token      string
	MountPath  string
	SecretPath string
	Timeout    time.Duration
	CacheTTL   time.Duration
}

// kvReader is the subset of the Vault KV v2 API the manager needs.
type kvReader interface {
	Get(ctx context.Context, secretPath string) (*vault.KVSecret, error)
}

// VaultManager reads secrets from a KV v2 engine. When Vault is disabled or
// the key is absent there, the upper-cased environment variable is used.
type VaultManager struct {
	kv     kvReader
	config VaultConfig
	cache  *cache.Cache
	log    *logger.Logger
}

func NewVaultManager(config VaultConfig, log *logger.Logger) (*VaultManager, error) {
	if config.CacheTTL <= 0 {
		config.CacheTTL = 5 * time.Minute
	}
	m := &VaultManager{
		config: config,
		cache:  cache.New(cache.Options{TTL: config.CacheTTL, PurgeInterval: config.CacheTTL}),
		log:    log,
	}
	if !config.Enabled {
		return m, nil
	}

	if config.Address == "" {
		return nil, ErrNoVaultAddress
	}
	if config.Token == "" {
		return nil, ErrNoVaultToken
	}
	if config.MountPath == "" {
		config.MountPath = "secret"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = config.Address
	vaultConfig.Timeout = config.Timeout
	vaultConfig.MaxRetries = 3

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(config.Token)

	m.config = config
	m.kv = client.KVv2(config.MountPath)
	return m, nil
}

// Close stops the cache purge loop.
func (m *VaultManager) Close() {
	m.cache.Close()
}

func (m *VaultManager) GetSecret(ctx context.Context, key string) (string, error) {
	if v, ok := m.cache.Get(key); ok {
		return v.(string), nil
	}

	if m.kv == nil {
		return m.fromEnvironment(key)
	}

	value, err := m.fromVault(ctx, key)
	if errors.Is(err, ErrSecretNotFound) {
		m.log.Warn("secret not found in vault, falling back to environment", "key", key)
		return m.fromEnvironment(key)
	}
	if err != nil {
		return "", err
	}
	m.cache.Set(key, value)
	return value, nil
}

func (m *VaultManager) GetSecretWithDefault(ctx context.Context, key, defaultValue string) string {
	value, err := m.GetSecret(ctx, key)
	if err != nil {
		m.log.Warn("failed to get secret, using default value", "key", key, "error", err.Error())
		return defaultValue
	}
	return value
}

func (m *VaultManager) fromVault(ctx context.Context, key string) (string, error) {
	secret, err := m.kv.Get(ctx, m.config.SecretPath)
	if errors.Is(err, vault.ErrSecretNotFound) {
		return "", ErrSecretNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read secret %s: %w", m.config.SecretPath, err)
	}
	if secret == nil || secret.Data == nil {
		return "", ErrSecretNotFound
	}
	value, ok := secret.Data[key].(string)
	if !ok || value == "" {
		return "", ErrSecretNotFound
	}
	return value, nil
}

// EnvKey maps a secret key such as jwt-secret to JWT_SECRET.
func EnvKey(key string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}

func (m *VaultManager) fromEnvironment(key string) (string, error) {
	value := os.Getenv(EnvKey(key))
	if value == "" {
		return "", ErrSecretNotFound
	}
	m.cache.Set(key, value)
	return value, nil
}
