package config

import (
	"testing"
	"time"
)

func TestInt(t *testing.T) {
	t.Setenv("CFG_INT", "42")
	if got := Int("CFG_INT", 7); got != 42 {
		t.Fatalf("Int = %d", got)
	}
	if got := Int("CFG_INT_MISSING", 7); got != 7 {
		t.Fatalf("fallback = %d", got)
	}
	t.Setenv("CFG_INT_BAD", "abc")
	if got := Int("CFG_INT_BAD", 7); got != 7 {
		t.Fatalf("bad value should fall back, got %d", got)
	}
}

func TestBool(t *testing.T) {
	t.Setenv("CFG_BOOL", "true")
	if !Bool("CFG_BOOL", false) {
		t.Fatal("expected true")
	}
	t.Setenv("CFG_BOOL", "0")
	if Bool("CFG_BOOL", true) {
		t.Fatal("expected false")
	}
	if !Bool("CFG_BOOL_MISSING", true) {
		t.Fatal("expected fallback true")
	}
}

func TestDuration(t *testing.T) {
	t.Setenv("CFG_DUR", "30s")
	if got := Duration("CFG_DUR", time.Minute); got != 30*time.Second {
		t.Fatalf("Duration = %v", got)
	}
	// Bare integers are treated as seconds.
	t.Setenv("CFG_DUR", "90")
	if got := Duration("CFG_DUR", time.Minute); got != 90*time.Second {
		t.Fatalf("Duration = %v", got)
	}
	if got := Duration("CFG_DUR_MISSING", time.Minute); got != time.Minute {
		t.Fatalf("fallback = %v", got)
	}
}
