package testutil

import (
	"context"
	"testing"
	"time"
)

// TestContext returns a context that expires with a generous test timeout
// and is cleaned up with the test.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}
