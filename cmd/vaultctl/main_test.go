package main

import (
	"VaultLedger/internal/auth"
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTokenCommand_IssuesVerifiableToken(t *testing.T) {
	secret := "jwt-secret-jwt-secret-jwt-secret-0123"
	t.Setenv("VAULT_AUTHORITY_SECRET", "authority-secret-authority-secret-0123")
	t.Setenv("VAULT_JWT_SECRET", secret)
	t.Setenv("VAULT_JWT_ISSUER", "vaultledger-test")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "risk-engine", "--ttl", "10m",
		"--env-file", filepath.Join(t.TempDir(), "missing.env")})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}

	token := strings.TrimSpace(out.String())
	p, err := auth.NewVerifier([]byte(secret), "vaultledger-test").Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.ID != "risk-engine" {
		t.Errorf("subject: got %q, want risk-engine", p.ID)
	}
	if d := time.Until(p.ExpiresAt); d <= 0 || d > 10*time.Minute {
		t.Errorf("expiry %v outside the requested ttl", d)
	}
}

func TestTokenCommand_RequiresIdentity(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"token"})
	if err := cmd.ExecuteContext(context.Background()); err == nil {
		t.Fatal("expected an argument error")
	}
}
