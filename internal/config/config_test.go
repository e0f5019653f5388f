package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: \"9090\"\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("port = %q, want 9090", cfg.Server.Port)
	}
	if cfg.Reconcile.RequiredConfirmations != 12 {
		t.Fatalf("required confirmations = %d, want 12", cfg.Reconcile.RequiredConfirmations)
	}
	if cfg.Reconcile.PollInterval != 15*time.Second {
		t.Fatalf("poll interval = %s", cfg.Reconcile.PollInterval)
	}
	if cfg.Chain.ValueDecimals != 18 {
		t.Fatalf("value decimals = %d", cfg.Chain.ValueDecimals)
	}
}

func TestLoadReadsReconcileSection(t *testing.T) {
	body := `
database:
  driver: sqlite
  path: /tmp/x.db
reconcile:
  required_confirmations: 3
  concurrency: 2
  intent_ttl: 2h
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.Path != "/tmp/x.db" {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if cfg.Reconcile.RequiredConfirmations != 3 || cfg.Reconcile.Concurrency != 2 {
		t.Fatalf("reconcile = %+v", cfg.Reconcile)
	}
	if cfg.Reconcile.IntentTTL != 2*time.Hour {
		t.Fatalf("intent ttl = %s", cfg.Reconcile.IntentTTL)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ILR_RECONCILE_REQUIRED_CONFIRMATIONS", "5")
	cfg, err := Load(writeConfig(t, "log:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Reconcile.RequiredConfirmations != 5 {
		t.Fatalf("required confirmations = %d, want 5", cfg.Reconcile.RequiredConfirmations)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero confirmations", "reconcile:\n  required_confirmations: 0\n"},
		{"zero concurrency", "reconcile:\n  concurrency: 0\n"},
		{"unknown driver", "database:\n  driver: oracle\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
