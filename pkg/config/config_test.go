package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("POLICY_MAX_RESERVATION_DAYS", "21")
	t.Setenv("OVERDUE_SWEEP_INTERVAL", "2m")
	t.Setenv("EMAIL_DEV_MODE", "false")
	t.Setenv("DB_MAX_CONNS", "not-a-number")
	t.Setenv("MAIL_REPLY_TO", "desk@library.local")

	cfg := Load()

	if cfg.Server.Port != "9090" {
		t.Fatalf("Expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Policy.MaxReservationDays != 21 {
		t.Fatalf("Expected max reservation days 21, got %d", cfg.Policy.MaxReservationDays)
	}
	if cfg.Sweeper.Interval != 2*time.Minute {
		t.Fatalf("Expected sweep interval 2m, got %s", cfg.Sweeper.Interval)
	}
	if cfg.Email.DevMode {
		t.Fatal("Expected dev mode to be disabled")
	}
	if cfg.Email.ReplyTo != "desk@library.local" {
		t.Fatalf("Expected reply-to desk@library.local, got %q", cfg.Email.ReplyTo)
	}
	if cfg.Database.MaxConns != 10 {
		t.Fatalf("Expected fallback max conns 10, got %d", cfg.Database.MaxConns)
	}
}

func TestLoadPolicyFile_OverlaysBase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("max_advance_days: 60\naverage_loan_days: 21\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	base := PolicyConfig{MinPickupDays: 1, MaxAdvanceDays: 90, MaxReservationDays: 30, AverageLoanDays: 14}
	p, err := LoadPolicyFile(path, base)
	if err != nil {
		t.Fatalf("LoadPolicyFile: %v", err)
	}

	want := PolicyConfig{MinPickupDays: 1, MaxAdvanceDays: 60, MaxReservationDays: 30, AverageLoanDays: 21}
	if p != want {
		t.Fatalf("Expected %+v, got %+v", want, p)
	}
}

func TestLoadPolicyFile_RejectsInvalid(t *testing.T) {
	base := PolicyConfig{MinPickupDays: 1, MaxAdvanceDays: 90, MaxReservationDays: 30, AverageLoanDays: 14}

	tests := []struct {
		name    string
		content string
	}{
		{"advance below pickup", "min_pickup_days: 10\nmax_advance_days: 5\n"},
		{"zero span", "max_reservation_days: 0\n"},
		{"not yaml", "max_advance_days: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "policy.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			p, err := LoadPolicyFile(path, base)
			if err == nil {
				t.Fatal("Expected an error")
			}
			if p != base {
				t.Fatalf("Expected base policy on error, got %+v", p)
			}
		})
	}

	if _, err := LoadPolicyFile(filepath.Join(t.TempDir(), "missing.yaml"), base); err == nil {
		t.Fatal("Expected an error for a missing file")
	}
}
