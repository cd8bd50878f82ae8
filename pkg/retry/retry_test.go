package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"syscall"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.InitialDelay != time.Second {
		t.Errorf("expected InitialDelay=1s, got %v", cfg.InitialDelay)
	}
	if cfg.MaxDelay != 5*time.Second {
		t.Errorf("expected MaxDelay=5s, got %v", cfg.MaxDelay)
	}
	if cfg.Multiplier != 2.0 {
		t.Errorf("expected Multiplier=2.0, got %f", cfg.Multiplier)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"zero value gets defaults", Config{}, false},
		{"negative initial", Config{InitialDelay: -1}, true},
		{"initial above max", Config{InitialDelay: 10 * time.Second, MaxDelay: time.Second}, true},
		{"shrinking multiplier", Config{Multiplier: 0.5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.Normalize()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Normalize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && cfg.After == nil {
				t.Error("expected After to be defaulted")
			}
		})
	}
}

func TestCalculateDelay(t *testing.T) {
	config := DefaultConfig()
	if err := config.Normalize(); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		retry    int
		expected time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{10, 5 * time.Second},
		{100, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("retry_%d", tt.retry), func(t *testing.T) {
			if got := config.calculateDelay(tt.retry); got != tt.expected {
				t.Errorf("calculateDelay(%d) = %v, want %v", tt.retry, got, tt.expected)
			}
		})
	}
}

func TestBackoff_NonDecreasing(t *testing.T) {
	b, err := NewBackoff(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	prev := time.Duration(0)
	for i := 0; i < 8; i++ {
		d := b.Next()
		if d < prev {
			t.Fatalf("delay %d decreased: %v < %v", i, d, prev)
		}
		if d > DefaultMaxDelay {
			t.Fatalf("delay %d above ceiling: %v", i, d)
		}
		prev = d
	}
	if b.Retries() != 8 {
		t.Errorf("Retries() = %d, want 8", b.Retries())
	}
	want := (1 + 2 + 4 + 5*5) * time.Second
	if b.Total() != want {
		t.Errorf("Total() = %v, want %v", b.Total(), want)
	}
}

func TestBackoff_Wait(t *testing.T) {
	var waited []time.Duration
	cfg := DefaultConfig()
	cfg.After = func(d time.Duration) <-chan time.Time {
		waited = append(waited, d)
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
	b, err := NewBackoff(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Wait(context.Background(), b.Next()); err != nil {
		t.Fatalf("Wait() = %v", err)
	}
	if len(waited) != 1 || waited[0] != time.Second {
		t.Fatalf("waited = %v", waited)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Wait(ctx, b.Next()); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait() on canceled ctx = %v", err)
	}
}

func TestBackoff_WaitCanceledWhileBlocked(t *testing.T) {
	cfg := DefaultConfig()
	cfg.After = func(time.Duration) <-chan time.Time { return make(chan time.Time) }
	b, _ := NewBackoff(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := b.Wait(ctx, b.Next()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() = %v", err)
	}
}

func TestStatusDecision(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		ok      bool
		attempt int
		max     int
		want    Decision
	}{
		{"ok response", 200, true, 0, 3, Stop},
		{"425 with budget", 425, false, 0, 3, Retry},
		{"503 with budget", 503, false, 2, 3, Retry},
		{"503 budget spent", 503, false, 3, 3, Stop},
		{"503 no retries configured", 503, false, 0, 0, Stop},
		{"404 never", 404, false, 0, 3, Stop},
		{"429 not in set", 429, false, 0, 3, Stop},
		{"409 in set", 409, false, 0, 1, Retry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusDecision(tt.status, tt.ok, tt.attempt, tt.max); got != tt.want {
				t.Errorf("StatusDecision() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorDecision(t *testing.T) {
	refused := &url.Error{Op: "Get", URL: "http://127.0.0.1:1", Err: &net.OpError{
		Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED),
	}}
	dns := &url.Error{Op: "Get", URL: "http://nope.invalid", Err: &net.OpError{
		Op: "dial", Net: "tcp", Err: &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true},
	}}
	eof := &url.Error{Op: "Get", URL: "http://example.com", Err: io.EOF}

	tests := []struct {
		name    string
		err     error
		attempt int
		max     int
		hungUp  bool
		want    Decision
	}{
		{"nil", nil, 0, 3, false, Stop},
		{"ECONNREFUSED text", errors.New("connect ECONNREFUSED 127.0.0.1:80"), 0, 5, false, Stop},
		{"connection refused errno", refused, 0, 5, false, Stop},
		{"dns failure", dns, 0, 5, false, Stop},
		{"ENOTFOUND text", errors.New("getaddrinfo ENOTFOUND example.invalid"), 0, 5, false, Stop},
		{"redirect loop", errors.New(`Get "/loop": stopped after 10 redirects: too many redirects`), 0, 5, false, Stop},
		{"disconnected", errors.New("net::ERR_INTERNET_DISCONNECTED"), 0, 5, false, Stop},
		{"hang up first", errors.New("socket hang up"), 0, 5, false, RetryHangUp},
		{"hang up without budget", errors.New("socket hang up"), 0, 0, false, RetryHangUp},
		{"hang up second", errors.New("socket hang up"), 1, 5, true, StopHangUp},
		{"eof is hang up", eof, 0, 0, false, RetryHangUp},
		{"generic with budget", errors.New("connection reset by peer"), 1, 2, false, Retry},
		{"generic budget spent", errors.New("connection reset by peer"), 2, 2, false, Stop},
		{"canceled", fmt.Errorf("get: %w", context.Canceled), 0, 5, false, Stop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorDecision(tt.err, tt.attempt, tt.max, tt.hungUp); got != tt.want {
				t.Errorf("ErrorDecision(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDecision_Retrying(t *testing.T) {
	if !Retry.Retrying() || !RetryHangUp.Retrying() {
		t.Error("retry decisions must report Retrying")
	}
	if Stop.Retrying() || StopHangUp.Retrying() {
		t.Error("stop decisions must not report Retrying")
	}
	if StopHangUp.String() != "stop_hangup" {
		t.Errorf("String() = %q", StopHangUp.String())
	}
}
