package internal

import (
	"testing"
	"time"
)

func TestValidateProxyURL(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"", false},
		{"http://127.0.0.1:7897", false},
		{"socks5://localhost:1080", false},
		{"ftp://host:21", true},
		{"http://", true},
	}
	for _, tt := range tests {
		err := ValidateProxyURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateProxyURL(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}

func TestHTTPClientCached(t *testing.T) {
	a, err := HTTPClient("", 3*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := HTTPClient(" ", 3*time.Second)
	if a != b {
		t.Error("expected the same client for equivalent keys")
	}
	if a.Timeout != 3*time.Second {
		t.Errorf("timeout = %v", a.Timeout)
	}
	if _, err := HTTPClient("ftp://x", time.Second); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}
