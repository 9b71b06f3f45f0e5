package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestGetEnvString(t *testing.T) {
	t.Setenv("TEST_STRING", "value")

	if got := GetEnvString("TEST_STRING", "default"); got != "value" {
		t.Errorf("GetEnvString() = %q, want %q", got, "value")
	}
	if got := GetEnvString("TEST_STRING_UNSET", "default"); got != "default" {
		t.Errorf("GetEnvString() = %q, want %q", got, "default")
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int
	}{
		{"valid integer", "42", 42},
		{"negative integer", "-5", -5},
		{"invalid value falls back", "not-a-number", 10},
		{"empty falls back", "", 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("TEST_INT", tt.value)
			}
			if got := GetEnvInt("TEST_INT", 10); got != tt.want {
				t.Errorf("GetEnvInt(%q) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"true", "true", true},
		{"one", "1", true},
		{"capital T", "T", true},
		{"false", "false", false},
		{"zero", "0", false},
		{"invalid falls back", "yes", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.value)
			if got := GetEnvBool("TEST_BOOL", true); got != tt.want {
				t.Errorf("GetEnvBool(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"seconds", "30s", 30 * time.Second},
		{"compound", "1h30m", 90 * time.Minute},
		{"invalid falls back", "soon", time.Minute},
		{"bare number falls back", "30", time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			if got := GetEnvDuration("TEST_DURATION", time.Minute); got != tt.want {
				t.Errorf("GetEnvDuration(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestGetEnvStringList(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{"single", "production", []string{"production"}},
		{"multiple with spaces", "production, staging ,dev", []string{"production", "staging", "dev"}},
		{"empty entries filtered", "a,,b,", []string{"a", "b"}},
		{"only separators falls back", ",,,", []string{"default"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_LIST", tt.value)
			got := GetEnvStringList("TEST_LIST", []string{"default"})
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("GetEnvStringList(%q) mismatch (-want +got):\n%s", tt.value, diff)
			}
		})
	}
}

func TestValidatePositiveDuration(t *testing.T) {
	if err := ValidatePositiveDuration(time.Second); err != nil {
		t.Errorf("ValidatePositiveDuration(1s) = %v, want nil", err)
	}
	if err := ValidatePositiveDuration(0); err == nil {
		t.Error("ValidatePositiveDuration(0) should fail")
	}
	if err := ValidatePositiveDuration(-time.Second); err == nil {
		t.Error("ValidatePositiveDuration(-1s) should fail")
	}
}

func TestValidateDurationRange(t *testing.T) {
	if err := ValidateDurationRange(time.Minute, time.Second, time.Hour); err != nil {
		t.Errorf("in-range duration = %v, want nil", err)
	}
	if err := ValidateDurationRange(time.Second, time.Minute, time.Hour); err == nil {
		t.Error("below-minimum duration should fail")
	}
	if err := ValidateDurationRange(2*time.Hour, time.Minute, time.Hour); err == nil {
		t.Error("above-maximum duration should fail")
	}
	if err := ValidateDurationRange(time.Minute, time.Hour, time.Second); err == nil {
		t.Error("inverted range should fail")
	}
}
