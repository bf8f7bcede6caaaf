package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingKeycloak is returned when the identity provider settings are absent.
var ErrMissingKeycloak = errors.New("missing required Keycloak env vars: KEYCLOAK_AUTHORITY, KEYCLOAK_CLIENT_ID")

type Config struct {
	AppPort       string
	PublicBaseURL string

	KeycloakAuthority    string
	KeycloakClientID     string
	KeycloakClientSecret string
	// KeycloakRoleClientID selects the resource_access entry read for client roles.
	KeycloakRoleClientID string

	RedisAddr     string
	RedisPassword string

	DatabaseDSN string

	CookieSecure bool
	SessionTTL   time.Duration

	LogEnv   string
	LogLevel string
}

// Load reads the configuration from the environment. Values from the
// given dotenv files are applied first without overriding the process
// environment; missing files are ignored.
func Load(envFiles ...string) Config {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}

	port := getEnv("APP_PORT", "8080")
	clientID := os.Getenv("KEYCLOAK_CLIENT_ID")

	cfg := Config{
		AppPort:       port,
		PublicBaseURL: strings.TrimSuffix(getEnv("PUBLIC_BASE_URL", "http://localhost:"+port), "/"),

		KeycloakAuthority:    strings.TrimSuffix(os.Getenv("KEYCLOAK_AUTHORITY"), "/"),
		KeycloakClientID:     clientID,
		KeycloakClientSecret: os.Getenv("KEYCLOAK_CLIENT_SECRET"),
		KeycloakRoleClientID: getEnv("KEYCLOAK_ROLE_CLIENT_ID", clientID),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		DatabaseDSN: os.Getenv("DATABASE_DSN"),

		CookieSecure: getEnvAsBool("COOKIE_SECURE", true),
		SessionTTL:   getEnvAsDuration("SESSION_TTL", 24*time.Hour),

		LogEnv:   getEnv("LOG_ENV", "dev"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate fails when a setting the process cannot start without is absent.
func (c Config) Validate() error {
	if c.KeycloakAuthority == "" || c.KeycloakClientID == "" {
		return ErrMissingKeycloak
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	return nil
}

// RedirectURL is where the identity provider sends the browser back to.
func (c Config) RedirectURL() string {
	return c.PublicBaseURL + "/"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}
