package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.StoreBackend != BackendFile {
		t.Errorf("StoreBackend = %q, want %q", cfg.StoreBackend, BackendFile)
	}
	if cfg.StoreFilePath != "./data/store.json" {
		t.Errorf("StoreFilePath = %q, want default", cfg.StoreFilePath)
	}
	if cfg.EventLogCapacity != 100 {
		t.Errorf("EventLogCapacity = %d, want 100", cfg.EventLogCapacity)
	}
	if cfg.DetectorMaxFailedLogins != 5 {
		t.Errorf("DetectorMaxFailedLogins = %d, want 5", cfg.DetectorMaxFailedLogins)
	}
	if cfg.DetectorMaxDevices != 3 {
		t.Errorf("DetectorMaxDevices = %d, want 3", cfg.DetectorMaxDevices)
	}
	if cfg.KDFTime != 3 || cfg.KDFMemoryKiB != 64*1024 || cfg.KDFThreads != 4 {
		t.Errorf("KDF = %d/%d/%d, want 3/65536/4", cfg.KDFTime, cfg.KDFMemoryKiB, cfg.KDFThreads)
	}
	if cfg.SessionTTL() != 24*time.Hour {
		t.Errorf("SessionTTL() = %v, want 24h", cfg.SessionTTL())
	}
	if cfg.InactivityTimeout() != 30*time.Minute {
		t.Errorf("InactivityTimeout() = %v, want 30m", cfg.InactivityTimeout())
	}
	if cfg.RefreshWindow() != 5*time.Minute {
		t.Errorf("RefreshWindow() = %v, want 5m", cfg.RefreshWindow())
	}
	if cfg.ExpiryGrace() != 0 {
		t.Errorf("ExpiryGrace() = %v, want 0", cfg.ExpiryGrace())
	}
	if cfg.DetectorWindow() != time.Hour {
		t.Errorf("DetectorWindow() = %v, want 1h", cfg.DetectorWindow())
	}
	if cfg.AuthTimeout() != 10*time.Second {
		t.Errorf("AuthTimeout() = %v, want 10s", cfg.AuthTimeout())
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("STORE_BACKEND", "Redis")
	os.Setenv("REDIS_URL", "redis://cache:6379/2")
	os.Setenv("SESSION_TTL", "12h")
	os.Setenv("EVENT_LOG_CAPACITY", "50")
	os.Setenv("KDF_MEMORY_KIB", "16384")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreBackend != BackendRedis {
		t.Errorf("StoreBackend = %q, want %q", cfg.StoreBackend, BackendRedis)
	}
	if cfg.RedisURL != "redis://cache:6379/2" {
		t.Errorf("RedisURL = %q", cfg.RedisURL)
	}
	if cfg.SessionTTL() != 12*time.Hour {
		t.Errorf("SessionTTL() = %v, want 12h", cfg.SessionTTL())
	}
	if cfg.EventLogCapacity != 50 {
		t.Errorf("EventLogCapacity = %d, want 50", cfg.EventLogCapacity)
	}
	if cfg.KDFMemoryKiB != 16384 {
		t.Errorf("KDFMemoryKiB = %d, want 16384", cfg.KDFMemoryKiB)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"STORE_BACKEND": "sqlite"}},
		{"postgres without dsn", map[string]string{"STORE_BACKEND": "postgres"}},
		{"zero capacity", map[string]string{"EVENT_LOG_CAPACITY": "0"}},
		{"kdf memory too low", map[string]string{"KDF_MEMORY_KIB": "1024"}},
		{"kdf memory too high", map[string]string{"KDF_MEMORY_KIB": "2097152"}},
		{"kdf time too high", map[string]string{"KDF_TIME": "11"}},
		{"bcrypt cost too high", map[string]string{"BCRYPT_COST": "40"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				os.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("Load: expected error")
			}
		})
	}
}

func TestDurationFallbacks(t *testing.T) {
	c := &Config{
		SessionTTLStr:        "nope",
		InactivityTimeoutStr: "-1m",
		RefreshWindowStr:     "",
		ExpiryGraceStr:       "30s",
		AuthTimeoutStr:       "0s",
	}
	if c.SessionTTL() != 24*time.Hour {
		t.Errorf("SessionTTL() = %v, want 24h", c.SessionTTL())
	}
	if c.InactivityTimeout() != 30*time.Minute {
		t.Errorf("InactivityTimeout() = %v, want 30m", c.InactivityTimeout())
	}
	if c.RefreshWindow() != 5*time.Minute {
		t.Errorf("RefreshWindow() = %v, want 5m", c.RefreshWindow())
	}
	if c.ExpiryGrace() != 30*time.Second {
		t.Errorf("ExpiryGrace() = %v, want 30s", c.ExpiryGrace())
	}
	if c.AuthTimeout() != 10*time.Second {
		t.Errorf("AuthTimeout() = %v, want 10s", c.AuthTimeout())
	}
}
