package util

import (
	"testing"
	"time"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TG_INT", "42")
	t.Setenv("TG_BAD_INT", "x")
	t.Setenv("TG_BOOL", "true")
	t.Setenv("TG_BAD_BOOL", "yes")
	t.Setenv("TG_DURATION", "15s")

	if got := GetEnvInt("TG_INT", 1); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if got := GetEnvInt("TG_BAD_INT", 1); got != 1 {
		t.Fatalf("expected default 1, got %d", got)
	}
	if got := GetEnvInt("TG_MISSING", 3); got != 3 {
		t.Fatalf("expected default 3, got %d", got)
	}
	if !GetEnvBool("TG_BOOL", false) {
		t.Fatal("expected true")
	}
	if GetEnvBool("TG_BAD_BOOL", false) {
		t.Fatal("expected default false for unrecognized value")
	}
	if got := GetEnvDuration("TG_DURATION", time.Second); got != 15*time.Second {
		t.Fatalf("expected 15s, got %v", got)
	}
	if got := GetEnvString("TG_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %s", got)
	}
}
