package loader

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Progress receives the completed fraction of a load, in [0, 1].
type Progress interface {
	Report(fraction float64)
}

// ProgressFunc adapts a function to Progress.
type ProgressFunc func(fraction float64)

// Report calls f(fraction).
func (f ProgressFunc) Report(fraction float64) { f(fraction) }

// Discard ignores progress.
var Discard Progress = ProgressFunc(func(float64) {})

// LogProgress writes one log line per report.
type LogProgress struct {
	Logger zerolog.Logger
	Target string
}

func (p LogProgress) Report(fraction float64) {
	p.Logger.Info().
		Str("target", p.Target).
		Str("progress", fmt.Sprintf("%.0f%%", fraction*100)).
		Msg("Import progress")
}
