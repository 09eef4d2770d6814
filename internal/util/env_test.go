package util

import (
	"testing"
	"time"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("AMPHORA_TEST_STR", "value")
	t.Setenv("AMPHORA_TEST_NUM", "7")
	t.Setenv("AMPHORA_TEST_BAD_NUM", "seven")
	t.Setenv("AMPHORA_TEST_BOOL", "1")
	t.Setenv("AMPHORA_TEST_BAD_BOOL", "yes please")
	t.Setenv("AMPHORA_TEST_MS", "1500")
	t.Setenv("AMPHORA_TEST_NEG_MS", "-5")

	if got := GetEnvString("AMPHORA_TEST_STR", "x"); got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
	if got := GetEnvString("AMPHORA_TEST_UNSET", "x"); got != "x" {
		t.Fatalf("expected default, got %q", got)
	}
	if got := GetEnvNumeric("AMPHORA_TEST_NUM", 1); got != 7 {
		t.Fatalf("expected 7, got %v", got)
	}
	if got := GetEnvNumeric("AMPHORA_TEST_BAD_NUM", 3); got != 3 {
		t.Fatalf("expected default 3, got %v", got)
	}
	if !GetEnvBool("AMPHORA_TEST_BOOL", false) {
		t.Fatalf("expected true")
	}
	if !GetEnvBool("AMPHORA_TEST_BAD_BOOL", true) {
		t.Fatalf("expected default true for malformed bool")
	}
	if got := GetEnvMillis("AMPHORA_TEST_MS", time.Second); got != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s, got %v", got)
	}
	if got := GetEnvMillis("AMPHORA_TEST_NEG_MS", time.Second); got != time.Second {
		t.Fatalf("expected default for negative, got %v", got)
	}
}
