package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestLimit_Window(t *testing.T) {
	limit := Limit{Requests: 10, Seconds: 90}
	if limit.Window() != 90*time.Second {
		t.Errorf("Window() = %v, want 90s", limit.Window())
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Limit
		wantErr bool
	}{
		{name: "valid", input: "100/60", want: Limit{Requests: 100, Seconds: 60}},
		{name: "valid with spaces", input: " 5/300 ", want: Limit{Requests: 5, Seconds: 300}},
		{name: "missing separator", input: "100", wantErr: true},
		{name: "too many parts", input: "1/2/3", wantErr: true},
		{name: "non-numeric requests", input: "x/60", wantErr: true},
		{name: "non-numeric seconds", input: "100/y", wantErr: true},
		{name: "zero requests", input: "0/60", wantErr: true},
		{name: "negative seconds", input: "100/-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLimit(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidLimitSpec) {
					t.Errorf("ParseLimit(%q) error = %v, want ErrInvalidLimitSpec", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLimit(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseLimit(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLimitsFromPairs(t *testing.T) {
	tests := []struct {
		name    string
		values  []int
		want    []Limit
		wantErr bool
	}{
		{
			name:   "single pair",
			values: []int{10, 60},
			want:   []Limit{{Requests: 10, Seconds: 60}},
		},
		{
			name:   "two pairs preserve order",
			values: []int{10, 60, 1000, 3600},
			want:   []Limit{{Requests: 10, Seconds: 60}, {Requests: 1000, Seconds: 3600}},
		},
		{name: "empty", values: nil, wantErr: true},
		{name: "odd length", values: []int{10, 60, 5}, wantErr: true},
		{name: "zero requests", values: []int{0, 60}, wantErr: true},
		{name: "zero seconds", values: []int{10, 0}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LimitsFromPairs(tt.values...)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidLimitSpec) {
					t.Errorf("LimitsFromPairs(%v) error = %v, want ErrInvalidLimitSpec", tt.values, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("LimitsFromPairs(%v) error = %v", tt.values, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("LimitsFromPairs(%v) = %v, want %v", tt.values, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("limit[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNormalizeBucket(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "empty normalizes to default", input: "", want: DefaultBucket},
		{name: "plain name", input: "api", want: "api"},
		{name: "digits and hyphens", input: "api-v2", want: "api-v2"},
		{name: "space rejected", input: "bad bucket!", wantErr: true},
		{name: "underscore rejected", input: "a_b", wantErr: true},
		{name: "slash rejected", input: "a/b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeBucket(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidBucketName) {
					t.Errorf("NormalizeBucket(%q) error = %v, want ErrInvalidBucketName", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeBucket(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeBucket(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEventKey(t *testing.T) {
	got := EventKey("rate_limit", "ip:1.2.3.4", "api")
	want := "rate_limit:ip:1.2.3.4:api"
	if got != want {
		t.Errorf("EventKey() = %q, want %q", got, want)
	}

	// Different identities and buckets must never share a key.
	if EventKey("ns", "a", "api") == EventKey("ns", "b", "api") {
		t.Error("identities must not share keys")
	}
	if EventKey("ns", "a", "api") == EventKey("ns", "a", "web") {
		t.Error("buckets must not share keys")
	}
}
