package editor

import (
	"testing"

	"go.uber.org/goleak"
)

// Killed or timed-out children must not leave output-copying goroutines behind
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
