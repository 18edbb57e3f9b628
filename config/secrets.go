package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/hashicorp/vault/api"
	"golang.org/x/crypto/bcrypt"
)

// SecretManager supplies the credentials the service refuses to keep in
// plain config: the JWT signing secret, the login account, and the
// summarizer API key.
type SecretManager interface {
	GetSecret(key string) (string, error)
	GetJWTSecret() (string, error)
	GetUsername() (string, error)
	GetPassword() (string, error)
	GetSummarizerAPIKey() (string, error)
}

// EnvSecretManager reads secrets from WARPTRACE_* environment variables.
// This is the default provider.
type EnvSecretManager struct{}

func (e *EnvSecretManager) GetSecret(key string) (string, error) {
	envKey := "WARPTRACE_" + strings.ToUpper(key)
	value := os.Getenv(envKey)
	if value == "" {
		return "", fmt.Errorf("environment variable %s is not set", envKey)
	}
	return value, nil
}

func (e *EnvSecretManager) GetJWTSecret() (string, error) {
	return e.GetSecret("AUTH_JWT_SECRET")
}

func (e *EnvSecretManager) GetUsername() (string, error) {
	return e.GetSecret("AUTH_USERNAME")
}

func (e *EnvSecretManager) GetPassword() (string, error) {
	return e.GetSecret("AUTH_PASSWORD")
}

func (e *EnvSecretManager) GetSummarizerAPIKey() (string, error) {
	return e.GetSecret("LLM_API_KEY")
}

// VaultSecretManager reads a single HashiCorp Vault secret holding all
// service credentials as keys.
type VaultSecretManager struct {
	config *Config
	client *api.Client
}

func NewVaultSecretManager(config *Config) (*VaultSecretManager, error) {
	client, err := api.NewClient(&api.Config{
		Address: config.Secrets.Vault.Address,
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}

	if config.Secrets.Vault.Token != "" {
		client.SetToken(config.Secrets.Vault.Token)
	} else if token := os.Getenv("VAULT_TOKEN"); token != "" {
		client.SetToken(token)
	}

	return &VaultSecretManager{
		config: config,
		client: client,
	}, nil
}

func (v *VaultSecretManager) GetSecret(key string) (string, error) {
	path := v.config.Secrets.Vault.Path
	if path == "" {
		path = "secret/warptrace"
	}

	secret, err := v.client.Logical().Read(path)
	if err != nil {
		return "", fmt.Errorf("read vault secret at %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("no secret at vault path %s", path)
	}

	// A missing key and a non-string value fail the same way; either one
	// means the secret layout is wrong.
	value, ok := secret.Data[key].(string)
	if !ok {
		return "", fmt.Errorf("vault secret at %s has no string value for %q", path, key)
	}
	return value, nil
}

func (v *VaultSecretManager) GetJWTSecret() (string, error) {
	return v.GetSecret("jwt_secret")
}

func (v *VaultSecretManager) GetUsername() (string, error) {
	return v.GetSecret("username")
}

func (v *VaultSecretManager) GetPassword() (string, error) {
	return v.GetSecret("password")
}

func (v *VaultSecretManager) GetSummarizerAPIKey() (string, error) {
	return v.GetSecret("llm_api_key")
}

// AWSSecretManager reads a JSON secret from AWS Secrets Manager with the
// same key layout as the Vault provider.
type AWSSecretManager struct {
	config *Config
	client *secretsmanager.SecretsManager
}

func NewAWSSecretManager(config *Config) (*AWSSecretManager, error) {
	awsConfig := &aws.Config{
		Region: aws.String(config.Secrets.AWS.Region),
	}
	// Explicit keys win; otherwise the SDK's default chain applies
	// (env, shared credentials file, instance role).
	if config.Secrets.AWS.AccessKey != "" && config.Secrets.AWS.SecretKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			config.Secrets.AWS.AccessKey,
			config.Secrets.AWS.SecretKey,
			"",
		)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}

	return &AWSSecretManager{
		config: config,
		client: secretsmanager.New(sess),
	}, nil
}

func (a *AWSSecretManager) GetSecret(key string) (string, error) {
	secretID := a.config.Secrets.AWS.SecretID
	if secretID == "" {
		secretID = "warptrace/secrets"
	}

	result, err := a.client.GetSecretValue(&secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", fmt.Errorf("fetch aws secret %s: %w", secretID, err)
	}

	// SecretString is nil for binary secrets; StringValue turns that into
	// an empty document instead of a nil dereference.
	var values map[string]string
	if err := json.Unmarshal([]byte(aws.StringValue(result.SecretString)), &values); err != nil {
		return "", fmt.Errorf("decode aws secret %s: %w", secretID, err)
	}

	value, ok := values[key]
	if !ok {
		return "", fmt.Errorf("aws secret %s has no key %q", secretID, key)
	}
	return value, nil
}

func (a *AWSSecretManager) GetJWTSecret() (string, error) {
	return a.GetSecret("jwt_secret")
}

func (a *AWSSecretManager) GetUsername() (string, error) {
	return a.GetSecret("username")
}

func (a *AWSSecretManager) GetPassword() (string, error) {
	return a.GetSecret("password")
}

func (a *AWSSecretManager) GetSummarizerAPIKey() (string, error) {
	return a.GetSecret("llm_api_key")
}

// NewSecretManager selects the provider named by secrets.provider.
func NewSecretManager(config *Config) (SecretManager, error) {
	provider := config.Secrets.Provider
	if provider == "" {
		provider = "env"
	}

	switch provider {
	case "env":
		return &EnvSecretManager{}, nil
	case "vault":
		return NewVaultSecretManager(config)
	case "aws":
		return NewAWSSecretManager(config)
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", provider)
	}
}

// LoadSecrets loads secrets from the configured provider. Auth credentials
// are required; the summarizer API key is optional because the narrator
// falls back to a deterministic summary without one.
func LoadSecrets(config *Config) error {
	manager, err := NewSecretManager(config)
	if err != nil {
		return fmt.Errorf("select secret provider: %w", err)
	}

	jwtSecret, err := manager.GetJWTSecret()
	if err != nil {
		return fmt.Errorf("load JWT secret: %w", err)
	}
	// The same strength bar applies whether the secret came from config
	// or from a provider.
	if err := validateJWTSecret(jwtSecret); err != nil {
		return fmt.Errorf("secret provider returned unusable JWT secret: %w", err)
	}
	config.Auth.JWTSecret = jwtSecret

	username, err := manager.GetUsername()
	if err != nil {
		return fmt.Errorf("load username: %w", err)
	}
	config.Auth.Username = username

	password, err := manager.GetPassword()
	if err != nil {
		return fmt.Errorf("load password: %w", err)
	}
	// Login compares against the hash, so the loaded password replaces it
	// and the plaintext is dropped.
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), config.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash loaded password: %w", err)
	}
	config.Auth.HashedPassword = string(hashed)
	config.Auth.Password = ""

	if apiKey, err := manager.GetSummarizerAPIKey(); err == nil {
		config.LLM.APIKey = apiKey
	}

	return nil
}
