// Package report accumulates a run's failures into a single digest and
// hands it to the notification sink.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/moruklabs/dev-archive/internal/archive"
)

// Notifier is the external delivery collaborator. Delivery is best
// effort: the Reporter logs Notify errors and never escalates them.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Reporter formats and sends the end-of-run failure digest.
type Reporter struct {
	notifier Notifier
	logger   *zap.Logger
}

// New builds a Reporter.
func New(notifier Notifier, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{notifier: notifier, logger: logger}
}

// Report sends one digest for the run's failures. It is a no-op for an
// empty list. Delivery problems are logged, never returned, so failure
// reporting cannot mask the run's exit status.
func (r *Reporter) Report(ctx context.Context, runID string, asOf time.Time, failures []archive.FailureRecord) {
	if len(failures) == 0 {
		return
	}

	digest := Digest(runID, asOf, failures)
	if r.notifier == nil {
		r.logger.Warn("no notifier configured; failure digest not delivered",
			zap.Int("failures", len(failures)),
		)
		return
	}
	if err := r.notifier.Notify(ctx, digest); err != nil {
		r.logger.Warn("failure digest delivery failed",
			zap.Error(err),
			zap.Int("failures", len(failures)),
		)
	}
}

// Digest renders the human-readable failure summary.
func Digest(runID string, asOf time.Time, failures []archive.FailureRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Capture Failures* (%s UTC, run %s):", asOf.UTC().Format(time.RFC3339), runID)
	for _, failure := range failures {
		fmt.Fprintf(&b, "\n- `%s` for `%s`: %s", failure.Identifier, failure.Location, failure.Kind)
		if failure.Detail != "" {
			fmt.Fprintf(&b, " (%s)", failure.Detail)
		}
	}
	return b.String()
}
