package config_test

import (
	"VaultLedger/internal/config"
	"VaultLedger/internal/ledger"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testAuthoritySecret = "0123456789abcdef0123456789abcdef"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("VAULT_AUTHORITY_SECRET", testAuthoritySecret)
	t.Setenv("VAULT_JWT_SECRET", "jwt-secret")
}

func TestParse_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := config.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.StoreDriver != "sqlite" || cfg.CustodyKind != "memory" {
		t.Errorf("driver=%s custody=%s", cfg.StoreDriver, cfg.CustodyKind)
	}
	if cfg.GRPCAddr != ":9090" || cfg.HTTPAddr != ":8080" || cfg.MetricsAddr != ":9091" {
		t.Errorf("addrs: %s %s %s", cfg.GRPCAddr, cfg.HTTPAddr, cfg.MetricsAddr)
	}
	if cfg.OutboxInterval != 500*time.Millisecond || cfg.OutboxBatch != 100 {
		t.Errorf("outbox: batch=%d interval=%s", cfg.OutboxBatch, cfg.OutboxInterval)
	}
	if len(cfg.Publishers) != 0 {
		t.Errorf("publishers: %v", cfg.Publishers)
	}
	if got := cfg.StoreDSN(); got != "file:vaultledger.db" {
		t.Errorf("dsn: %s", got)
	}
}

func TestParse_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("VAULT_STORE_DRIVER", "postgres")
	t.Setenv("VAULT_POSTGRES_DSN", "postgres://x@db/vault")
	t.Setenv("VAULT_PUBLISHERS", "nats,kafka")
	t.Setenv("VAULT_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("VAULT_ASSET_DECIMALS", "SOL:9,USDT:2")

	cfg, err := config.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.StoreDSN() != "postgres://x@db/vault" {
		t.Errorf("dsn: %s", cfg.StoreDSN())
	}
	if !cfg.HasPublisher("kafka") || !cfg.HasPublisher("nats") {
		t.Errorf("publishers: %v", cfg.Publishers)
	}
	if len(cfg.KafkaBrokers) != 2 {
		t.Errorf("brokers: %v", cfg.KafkaBrokers)
	}
	dec := cfg.Decimals()
	if dec[ledger.AssetKind("SOL")] != 9 || dec[ledger.AssetKind("USDT")] != 2 {
		t.Errorf("decimals: %v", dec)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing secrets", map[string]string{"VAULT_AUTHORITY_SECRET": "", "VAULT_JWT_SECRET": ""}, "AUTHORITY_SECRET"},
		{"short authority secret", map[string]string{"VAULT_AUTHORITY_SECRET": "short"}, "at least 32 bytes"},
		{"unknown driver", map[string]string{"VAULT_STORE_DRIVER": "mysql"}, "store driver"},
		{"unknown custody", map[string]string{"VAULT_CUSTODY_KIND": "chain"}, "custody kind"},
		{"unknown publisher", map[string]string{"VAULT_PUBLISHERS": "redis"}, "publisher"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				if v == "" {
					os.Unsetenv(k)
					continue
				}
				t.Setenv(k, v)
			}
			_, err := config.Parse()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	setRequired(t)
	t.Setenv("VAULT_GRPC_ADDR", ":7000")
	path := filepath.Join(t.TempDir(), ".env")
	contents := "VAULT_GRPC_ADDR=:6000\nVAULT_LOG_LEVEL=debug\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("VAULT_LOG_LEVEL") })

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":7000" {
		t.Errorf("environment should win over file: got %s", cfg.GRPCAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level from file: got %s", cfg.LogLevel)
	}
}

func TestLoad_MissingFileIgnored(t *testing.T) {
	setRequired(t)
	if _, err := config.Load(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("Load: %v", err)
	}
}
