package relay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestHashToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "typical token", raw: "bl_abc123xyz"},
		{name: "long token", raw: "bl_" + "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := HashToken(tt.raw)
			h := sha256.Sum256([]byte(tt.raw))
			if want := hex.EncodeToString(h[:]); got != want {
				t.Errorf("HashToken(%q) = %q, want %q", tt.raw, got, want)
			}
		})
	}

	t.Run("distinct inputs produce distinct hashes", func(t *testing.T) {
		t.Parallel()
		if HashToken("a") == HashToken("b") {
			t.Error("distinct inputs produced same hash")
		}
	})
}

func TestContextMeta(t *testing.T) {
	t.Parallel()

	ctx := ContextWithRequestID(context.Background(), "req-1")
	c := &Client{Name: "ingest"}
	ctx2 := ContextWithClient(ctx, c)

	if ctx2 != ctx {
		t.Error("ContextWithClient should reuse existing metadata")
	}
	if got := RequestIDFromContext(ctx2); got != "req-1" {
		t.Errorf("request id = %q, want %q", got, "req-1")
	}
	if got := ClientFromContext(ctx2); got != c {
		t.Errorf("client = %v, want %v", got, c)
	}
}

func TestContextMeta_Empty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if RequestIDFromContext(ctx) != "" {
		t.Error("expected empty request id")
	}
	if ClientFromContext(ctx) != nil {
		t.Error("expected nil client")
	}

	c := &Client{Name: "x"}
	ctx = ContextWithClient(ctx, c)
	if ClientFromContext(ctx) != c {
		t.Error("client not stored on fresh context")
	}
}
