package receiver

import (
	"errors"
	"testing"
	"time"
)

func TestConnectionState_String(t *testing.T) {
	tests := []struct {
		state ConnectionState
		want  string
	}{
		{Disconnected, "disconnected"},
		{Connecting, "connecting"},
		{Connected, "connected"},
		{ConnectionState(42), "unknown(42)"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("ConnectionState(%d).String() = %q, want %q", int32(tt.state), got, tt.want)
		}
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Endpoint
		wantErr error
	}{
		{name: "host only", input: "192.168.1.20", want: Endpoint{Host: "192.168.1.20", Port: 8765}},
		{name: "host and port", input: "scanner.local:9000", want: Endpoint{Host: "scanner.local", Port: 9000}},
		{name: "surrounding space", input: "  10.0.0.5 ", want: Endpoint{Host: "10.0.0.5", Port: 8765}},
		{name: "ipv6 literal", input: "::1", want: Endpoint{Host: "::1", Port: 8765}},
		{name: "bracketed ipv6 with port", input: "[::1]:8000", want: Endpoint{Host: "::1", Port: 8000}},
		{name: "empty", input: "", wantErr: ErrEmptyHost},
		{name: "port only", input: ":8765", wantErr: ErrEmptyHost},
		{name: "bad port", input: "host:http", wantErr: ErrInvalidPort},
		{name: "port out of range", input: "host:70000", wantErr: ErrInvalidPort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEndpoint(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseEndpoint(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEndpoint(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseEndpoint(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestEndpoint_Address(t *testing.T) {
	if got := (Endpoint{Host: "10.0.0.1"}).Address(); got != "10.0.0.1:8765" {
		t.Errorf("Address() = %q, want default port", got)
	}
	if got := (Endpoint{Host: "::1", Port: 1234}).Address(); got != "[::1]:1234" {
		t.Errorf("Address() = %q, want [::1]:1234", got)
	}
	if got := NewEndpoint("scanner").String(); got != "scanner:8765" {
		t.Errorf("String() = %q, want scanner:8765", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.RetryDelay != 500*time.Millisecond {
		t.Errorf("RetryDelay = %v, want 500ms", cfg.RetryDelay)
	}
	if cfg.ReadPause != 50*time.Millisecond {
		t.Errorf("ReadPause = %v, want 50ms", cfg.ReadPause)
	}
	if cfg.GracePeriod != 500*time.Millisecond {
		t.Errorf("GracePeriod = %v, want 500ms", cfg.GracePeriod)
	}
	if cfg.ReadBufferSize != 256 {
		t.Errorf("ReadBufferSize = %d, want 256", cfg.ReadBufferSize)
	}
	if cfg.ReadTimeout != 0 {
		t.Errorf("ReadTimeout = %v, want 0", cfg.ReadTimeout)
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{ReadPause: -time.Second, ReadBufferSize: 1}.withDefaults()
	if cfg.RetryDelay != 500*time.Millisecond {
		t.Errorf("RetryDelay = %v, want default", cfg.RetryDelay)
	}
	if cfg.GracePeriod != 500*time.Millisecond {
		t.Errorf("GracePeriod = %v, want default", cfg.GracePeriod)
	}
	if cfg.ReadPause != 0 {
		t.Errorf("ReadPause = %v, want 0", cfg.ReadPause)
	}
	if cfg.ReadBufferSize != 256 {
		t.Errorf("ReadBufferSize = %d, want 256", cfg.ReadBufferSize)
	}
}
