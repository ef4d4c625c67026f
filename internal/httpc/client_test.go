package httpc

import (
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	if c := NewClient(0); c.Timeout != DefaultTimeout {
		t.Errorf("default timeout: got %v", c.Timeout)
	}
	a, b := NewClient(time.Second), NewClient(2*time.Second)
	if a.Timeout != time.Second {
		t.Errorf("timeout: got %v", a.Timeout)
	}
	if a.Transport != b.Transport {
		t.Error("clients should share a transport")
	}
}
