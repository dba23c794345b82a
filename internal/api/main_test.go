package api

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain enables goroutine leak detection for all tests in the api package.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// httptest servers keep pooled connections alive briefly
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}
