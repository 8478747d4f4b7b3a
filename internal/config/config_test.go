package config_test

import (
	"testing"
	"time"

	"relay/internal/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	if cfg.BindAddr != ":7777" {
		t.Errorf("expected bind addr ':7777', got %q", cfg.BindAddr)
	}
	if cfg.AdminBindAddr != ":7778" {
		t.Errorf("expected admin bind addr ':7778', got %q", cfg.AdminBindAddr)
	}
	if cfg.DisconnectTimeout != 30*time.Second {
		t.Errorf("expected disconnect timeout 30s, got %v", cfg.DisconnectTimeout)
	}
	if cfg.RetransmitBaseDelay != 200*time.Millisecond {
		t.Errorf("expected retransmit base delay 200ms, got %v", cfg.RetransmitBaseDelay)
	}
	if cfg.RetransmitMaxDelay != 5*time.Second {
		t.Errorf("expected retransmit max delay 5s, got %v", cfg.RetransmitMaxDelay)
	}
	if cfg.TimeOffset != 0 {
		t.Errorf("expected zero time offset by default, got %v", cfg.TimeOffset)
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := config.Parse([]string{
		"-bind", ":9999",
		"-disconnect-timeout", "10s",
		"-retransmit-base-delay", "50ms",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.BindAddr != ":9999" {
		t.Errorf("bind addr: want ':9999' got %q", cfg.BindAddr)
	}
	if cfg.DisconnectTimeout != 10*time.Second {
		t.Errorf("disconnect timeout: want 10s got %v", cfg.DisconnectTimeout)
	}
	if cfg.RetransmitBaseDelay != 50*time.Millisecond {
		t.Errorf("retransmit base delay: want 50ms got %v", cfg.RetransmitBaseDelay)
	}
	// untouched fields keep their defaults
	if cfg.AdminBindAddr != ":7778" {
		t.Errorf("admin bind addr: want default ':7778' got %q", cfg.AdminBindAddr)
	}
}

func TestParseUnknownFlagFails(t *testing.T) {
	if _, err := config.Parse([]string{"-does-not-exist", "x"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}
