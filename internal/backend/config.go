package backend

import (
	"fmt"

	"dompet/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	cfg := Config{
		Type:              BackendType(appConfig.DataBackend),
		Auth:              AuthType(appConfig.AuthBackend),
		SQLiteDBPath:      appConfig.SQLiteDBPath,
		DatabaseURL:       appConfig.DatabaseURL,
		DatabaseMaxConns:  int32(appConfig.DatabaseMaxConns),
		SupabaseURL:       appConfig.SupabaseURL,
		SupabaseAnonKey:   appConfig.SupabaseAnonKey,
		SupabaseJWTSecret: appConfig.SupabaseJWTSecret,
		SessionSecret:     appConfig.SessionSecret,
		AMQPURL:           appConfig.AMQPURL,
		AMQPExchange:      appConfig.AMQPExchange,
		AMQPQueue:         appConfig.AMQPQueue,
	}
	return cfg, cfg.Validate()
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if !c.Auth.IsValid() {
		return fmt.Errorf("invalid auth type: %s", c.Auth)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case PostgresBackend:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for postgres backend")
		}
	case RESTBackend:
		if c.Auth != SupabaseAuth {
			return fmt.Errorf("rest backend requires supabase auth")
		}
	}

	if c.Type == RESTBackend || c.Auth == SupabaseAuth {
		if c.SupabaseURL == "" || c.SupabaseAnonKey == "" {
			return fmt.Errorf("Supabase URL and anon key are required for %s backend with %s auth", c.Type, c.Auth)
		}
	}
	if c.Auth == LocalAuth && c.SessionSecret == "" {
		return fmt.Errorf("session secret is required for local auth")
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{RESTBackend, PostgresBackend, SQLiteBackend, MemoryBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	strings := make([]string, len(types))
	for i, t := range types {
		strings[i] = t.String()
	}
	return strings
}
