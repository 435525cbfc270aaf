package testlog

import (
	"testing"

	"github.com/danmuck/lvstream/internal/logging"
	"github.com/rs/zerolog/log"
)

// Start configures the test logging profile and brackets the test's output
// with start/done lines so interleaved goroutine logs stay attributable.
func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Info().Str("test", t.Name()).Msg("start")
	t.Cleanup(func() {
		log.Info().Str("test", t.Name()).Bool("failed", t.Failed()).Msg("done")
	})
}
