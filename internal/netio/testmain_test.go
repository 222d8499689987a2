package netio_test

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain fails the package if a receiver or forwarding loop outlives
// its test.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
