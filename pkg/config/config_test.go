package config

import (
	"os"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected host 0.0.0.0, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 50051 {
		t.Errorf("Expected port 50051, got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxConnections != 1000 {
		t.Errorf("Expected max connections 1000, got %d", cfg.Server.MaxConnections)
	}
	if cfg.Server.RequestTimeout != 30*time.Second {
		t.Errorf("Expected request timeout 30s, got %v", cfg.Server.RequestTimeout)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Expected shutdown timeout 10s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.EnableTLS {
		t.Error("Expected TLS disabled by default")
	}

	if cfg.HNSW.M != 16 {
		t.Errorf("Expected M=16, got %d", cfg.HNSW.M)
	}
	if cfg.HNSW.EfConstruction != 200 {
		t.Errorf("Expected EfConstruction=200, got %d", cfg.HNSW.EfConstruction)
	}
	if cfg.HNSW.DefaultEfSearch != 50 {
		t.Errorf("Expected DefaultEfSearch=50, got %d", cfg.HNSW.DefaultEfSearch)
	}
	if cfg.HNSW.Dimensions != 768 {
		t.Errorf("Expected Dimensions=768, got %d", cfg.HNSW.Dimensions)
	}

	if !cfg.Cache.Enabled {
		t.Error("Expected cache enabled by default")
	}
	if cfg.Cache.MaxBytes != 64*1024*1024 {
		t.Errorf("Expected cache max bytes 64MiB, got %d", cfg.Cache.MaxBytes)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("Expected cache TTL 5m, got %v", cfg.Cache.TTL)
	}

	if cfg.Storage.DataDir != "./data" {
		t.Errorf("Expected data dir ./data, got %s", cfg.Storage.DataDir)
	}
	if !cfg.Storage.EnableWAL {
		t.Error("Expected WAL enabled by default")
	}
	if cfg.Storage.SyncWrites {
		t.Error("Expected sync writes disabled by default")
	}
	if cfg.Storage.MaxCollections != 100 {
		t.Errorf("Expected max collections 100, got %d", cfg.Storage.MaxCollections)
	}

	if cfg.Auth.Enabled {
		t.Error("Expected auth disabled by default")
	}

	if !cfg.RateLimit.Enabled {
		t.Error("Expected rate limiting enabled by default")
	}
	if cfg.RateLimit.WritesPerSecond != 5000 {
		t.Errorf("Expected 5000 writes/sec, got %v", cfg.RateLimit.WritesPerSecond)
	}
}

func TestLoadFromEnv(t *testing.T) {
	envVars := []string{
		"VECTORIZER_HOST", "VECTORIZER_PORT", "VECTORIZER_MAX_CONNECTIONS",
		"VECTORIZER_REQUEST_TIMEOUT", "VECTORIZER_ENABLE_TLS",
		"VECTORIZER_HNSW_M", "VECTORIZER_HNSW_EF_CONSTRUCTION", "VECTORIZER_DIMENSIONS",
		"VECTORIZER_CACHE_ENABLED", "VECTORIZER_CACHE_MAX_BYTES", "VECTORIZER_CACHE_TTL",
		"VECTORIZER_DATA_DIR", "VECTORIZER_ENABLE_WAL", "VECTORIZER_SYNC_WRITES",
		"VECTORIZER_AUTH_ENABLED", "VECTORIZER_JWT_SECRET",
	}
	originalEnv := make(map[string]string)
	for _, key := range envVars {
		originalEnv[key] = os.Getenv(key)
	}
	defer func() {
		for key, value := range originalEnv {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	}()

	os.Setenv("VECTORIZER_HOST", "127.0.0.1")
	os.Setenv("VECTORIZER_PORT", "8080")
	os.Setenv("VECTORIZER_MAX_CONNECTIONS", "5000")
	os.Setenv("VECTORIZER_REQUEST_TIMEOUT", "60s")
	os.Setenv("VECTORIZER_ENABLE_TLS", "true")

	os.Setenv("VECTORIZER_HNSW_M", "32")
	os.Setenv("VECTORIZER_HNSW_EF_CONSTRUCTION", "400")
	os.Setenv("VECTORIZER_DIMENSIONS", "1536")

	os.Setenv("VECTORIZER_CACHE_ENABLED", "false")
	os.Setenv("VECTORIZER_CACHE_MAX_BYTES", "1048576")
	os.Setenv("VECTORIZER_CACHE_TTL", "10m")

	os.Setenv("VECTORIZER_DATA_DIR", "/var/lib/vectorizer")
	os.Setenv("VECTORIZER_ENABLE_WAL", "false")
	os.Setenv("VECTORIZER_SYNC_WRITES", "true")

	os.Setenv("VECTORIZER_AUTH_ENABLED", "true")
	os.Setenv("VECTORIZER_JWT_SECRET", "shh")

	cfg := LoadFromEnv()

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Expected host 127.0.0.1, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxConnections != 5000 {
		t.Errorf("Expected max connections 5000, got %d", cfg.Server.MaxConnections)
	}
	if cfg.Server.RequestTimeout != 60*time.Second {
		t.Errorf("Expected request timeout 60s, got %v", cfg.Server.RequestTimeout)
	}
	if !cfg.Server.EnableTLS {
		t.Error("Expected TLS enabled")
	}

	if cfg.HNSW.M != 32 {
		t.Errorf("Expected M=32, got %d", cfg.HNSW.M)
	}
	if cfg.HNSW.EfConstruction != 400 {
		t.Errorf("Expected EfConstruction=400, got %d", cfg.HNSW.EfConstruction)
	}
	if cfg.HNSW.Dimensions != 1536 {
		t.Errorf("Expected Dimensions=1536, got %d", cfg.HNSW.Dimensions)
	}

	if cfg.Cache.Enabled {
		t.Error("Expected cache disabled")
	}
	if cfg.Cache.MaxBytes != 1048576 {
		t.Errorf("Expected cache max bytes 1048576, got %d", cfg.Cache.MaxBytes)
	}
	if cfg.Cache.TTL != 10*time.Minute {
		t.Errorf("Expected cache TTL 10m, got %v", cfg.Cache.TTL)
	}

	if cfg.Storage.DataDir != "/var/lib/vectorizer" {
		t.Errorf("Expected data dir /var/lib/vectorizer, got %s", cfg.Storage.DataDir)
	}
	if cfg.Storage.EnableWAL {
		t.Error("Expected WAL disabled")
	}
	if !cfg.Storage.SyncWrites {
		t.Error("Expected sync writes enabled")
	}

	if !cfg.Auth.Enabled {
		t.Error("Expected auth enabled")
	}
	if cfg.Auth.JWTSecret != "shh" {
		t.Errorf("Expected JWT secret 'shh', got %s", cfg.Auth.JWTSecret)
	}
}

func TestLoadFromEnv_InvalidValues(t *testing.T) {
	originalPort := os.Getenv("VECTORIZER_PORT")
	defer func() {
		if originalPort == "" {
			os.Unsetenv("VECTORIZER_PORT")
		} else {
			os.Setenv("VECTORIZER_PORT", originalPort)
		}
	}()

	os.Setenv("VECTORIZER_PORT", "invalid")
	cfg := LoadFromEnv()

	if cfg.Server.Port != 50051 {
		t.Errorf("Expected default port 50051 for invalid value, got %d", cfg.Server.Port)
	}
}

func TestLoadFromEnv_DefaultsWhenNotSet(t *testing.T) {
	envVars := []string{
		"VECTORIZER_HOST", "VECTORIZER_PORT", "VECTORIZER_MAX_CONNECTIONS",
		"VECTORIZER_REQUEST_TIMEOUT", "VECTORIZER_ENABLE_TLS",
		"VECTORIZER_HNSW_M", "VECTORIZER_HNSW_EF_CONSTRUCTION", "VECTORIZER_DIMENSIONS",
		"VECTORIZER_CACHE_ENABLED", "VECTORIZER_CACHE_MAX_BYTES", "VECTORIZER_CACHE_TTL",
		"VECTORIZER_DATA_DIR", "VECTORIZER_ENABLE_WAL", "VECTORIZER_SYNC_WRITES",
	}
	originalEnv := make(map[string]string)
	for _, key := range envVars {
		originalEnv[key] = os.Getenv(key)
		os.Unsetenv(key)
	}
	defer func() {
		for key, value := range originalEnv {
			if value != "" {
				os.Setenv(key, value)
			}
		}
	}()

	cfg := LoadFromEnv()
	defaults := Default()

	if cfg.Server.Host != defaults.Server.Host {
		t.Errorf("Expected default host, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != defaults.Server.Port {
		t.Errorf("Expected default port, got %d", cfg.Server.Port)
	}
	if cfg.HNSW.M != defaults.HNSW.M {
		t.Errorf("Expected default M, got %d", cfg.HNSW.M)
	}
	if cfg.Cache.Enabled != defaults.Cache.Enabled {
		t.Errorf("Expected default cache enabled, got %v", cfg.Cache.Enabled)
	}
	if cfg.Storage.DataDir != defaults.Storage.DataDir {
		t.Errorf("Expected default data dir, got %s", cfg.Storage.DataDir)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:    "Valid default config",
			config:  Default(),
			wantErr: false,
		},
		{
			name: "Invalid port (too low)",
			config: &Config{
				Server:  ServerConfig{Port: 0},
				Storage: StorageConfig{DataDir: "./data"},
			},
			wantErr: true,
		},
		{
			name: "Invalid port (too high)",
			config: &Config{
				Server:  ServerConfig{Port: 70000},
				Storage: StorageConfig{DataDir: "./data"},
			},
			wantErr: true,
		},
		{
			name: "Invalid M (too low)",
			config: &Config{
				Server:  ServerConfig{Port: 50051},
				HNSW:    HNSWConfig{M: 0},
				Storage: StorageConfig{DataDir: "./data"},
			},
			wantErr: true,
		},
		{
			name: "Invalid dimensions",
			config: &Config{
				Server:  ServerConfig{Port: 50051},
				HNSW:    HNSWConfig{M: 16, EfConstruction: 200, Dimensions: 0},
				Storage: StorageConfig{DataDir: "./data"},
			},
			wantErr: true,
		},
		{
			name: "Auth enabled without secret",
			config: &Config{
				Server:  ServerConfig{Port: 50051},
				HNSW:    HNSWConfig{M: 16, EfConstruction: 200, Dimensions: 768},
				Storage: StorageConfig{DataDir: "./data"},
				Auth:    AuthConfig{Enabled: true},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{
		Host: "localhost",
		Port: 8080,
	}

	addr := cfg.Address()
	expected := "localhost:8080"

	if addr != expected {
		t.Errorf("Expected address %s, got %s", expected, addr)
	}

	defaultCfg := Default()
	addr = defaultCfg.Server.Address()
	expected = "0.0.0.0:50051"

	if addr != expected {
		t.Errorf("Expected default address %s, got %s", expected, addr)
	}
}
