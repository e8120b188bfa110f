package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Distribution.BatchSize != 10 {
		t.Fatalf("batch_size default: %d", cfg.Distribution.BatchSize)
	}
	if cfg.Distribution.MaxRetries != 3 {
		t.Fatalf("max_retries default: %d", cfg.Distribution.MaxRetries)
	}
	if cfg.Distribution.Mode != "proportional" {
		t.Fatalf("mode default: %s", cfg.Distribution.Mode)
	}
	if cfg.Collection.CacheTTL != 5*time.Minute {
		t.Fatalf("cache_ttl default: %s", cfg.Collection.CacheTTL)
	}
	if cfg.Solana.Commitment != "confirmed" {
		t.Fatalf("commitment default: %s", cfg.Solana.Commitment)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
solana:
  rpc_url: http://localhost:8899
  mint: So11111111111111111111111111111111111111112
distribution:
  batch_size: 25
  mode: equal
collection:
  threshold: "100"
  exclude_addresses:
    - addr1
    - addr2
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Distribution.BatchSize != 25 {
		t.Fatalf("batch_size: %d", cfg.Distribution.BatchSize)
	}
	if cfg.Distribution.Mode != "equal" {
		t.Fatalf("mode: %s", cfg.Distribution.Mode)
	}
	if cfg.Collection.Threshold != "100" {
		t.Fatalf("threshold: %s", cfg.Collection.Threshold)
	}
	if len(cfg.Collection.ExcludeAddresses) != 2 {
		t.Fatalf("exclude_addresses: %v", cfg.Collection.ExcludeAddresses)
	}
	if err := cfg.RequireChain(); err != nil {
		t.Fatalf("chain fields present: %v", err)
	}
	if err := cfg.RequireSigner(); err == nil {
		t.Fatal("signer should be missing")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		return cfg
	}

	cfg := base()
	cfg.Distribution.BatchSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero batch_size must fail validation")
	}

	cfg = base()
	cfg.Distribution.Mode = "weighted"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown mode must fail validation")
	}

	cfg = base()
	cfg.Alerting.Telegram.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("telegram enabled without token must fail validation")
	}
}
