package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

func testCircuitConfig() Config {
	return Config{
		Name:             "test-circuit",
		MaxRequests:      3,
		Interval:         10 * time.Second,
		Timeout:          20 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

func TestNew(t *testing.T) {
	cb := New(testCircuitConfig())

	if cb == nil {
		t.Fatal("expected circuit breaker, got nil")
	}
	if cb.Name() != "test-circuit" {
		t.Errorf("expected name='test-circuit', got %q", cb.Name())
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("expected initial state=Closed, got %v", cb.State())
	}
}

func TestCircuitBreaker_Execute_Success(t *testing.T) {
	cb := New(testCircuitConfig())

	result, err := cb.Execute(func() (interface{}, error) {
		return "success", nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result != "success" {
		t.Errorf("expected result='success', got %v", result)
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("expected state=Closed after success, got %v", cb.State())
	}
}

func TestCircuitBreaker_Execute_Failure(t *testing.T) {
	cb := New(testCircuitConfig())

	testErr := errors.New("test error")
	result, err := cb.Execute(func() (interface{}, error) {
		return nil, testErr
	})

	if !errors.Is(err, testErr) {
		t.Errorf("expected error=%v, got %v", testErr, err)
	}
	if result != nil {
		t.Errorf("expected nil result, got %v", result)
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("one failure should not open the circuit, got %v", cb.State())
	}
}

func TestCircuitBreaker_TripsAfterRepeatedFailures(t *testing.T) {
	cfg := testCircuitConfig()
	cfg.FailureThreshold = 1.0
	cfg.MinRequests = 5
	cb := New(cfg)

	testErr := errors.New("backend down")
	for i := 0; i < 5; i++ {
		_, _ = cb.Execute(func() (interface{}, error) {
			return nil, testErr
		})
	}

	if !cb.IsOpen() {
		t.Fatalf("expected open circuit after 5 consecutive failures, got %v", cb.State())
	}

	_, err := cb.Execute(func() (interface{}, error) {
		t.Error("function must not run while the circuit is open")
		return nil, nil
	})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("my-circuit")

	if cfg.Name != "my-circuit" {
		t.Errorf("expected name='my-circuit', got %q", cfg.Name)
	}
	if cfg.FailureThreshold <= 0 || cfg.FailureThreshold > 1 {
		t.Errorf("FailureThreshold = %v, want a ratio in (0, 1]", cfg.FailureThreshold)
	}
	if cfg.MinRequests == 0 {
		t.Error("MinRequests should be positive")
	}
}

func TestStoreConfig(t *testing.T) {
	cfg := StoreConfig()

	if cfg.Name != "event-store" {
		t.Errorf("expected name='event-store', got %q", cfg.Name)
	}
	if cfg.FailureThreshold != 1.0 {
		t.Errorf("FailureThreshold = %v, want 1.0 (trip on total failure only)", cfg.FailureThreshold)
	}
}
