package orchestrator

// #region imports
import (
	"context"
	"time"

	"github.com/danielpatrickdp/persona-state/internal/activity"
	"github.com/danielpatrickdp/persona-state/internal/persona"
	"github.com/danielpatrickdp/persona-state/internal/targets"
	"github.com/danielpatrickdp/persona-state/internal/update"
)

// #endregion

// #region interfaces

// ActivityLog stores completed actions.
type ActivityLog interface {
	Add(ctx context.Context, r activity.Record) (activity.Record, error)
	Since(ctx context.Context, userID string, t time.Time) ([]activity.Record, error)
}

// #endregion

// #region observe-result

// ObserveResult is what one observation did to the persona.
type ObserveResult struct {
	Events   []update.FeedbackEvent
	Outcome  persona.UpdateOutcome
	Deferred bool // outcome held until enough samples exist
	Activity *activity.Record
}

// #endregion

// #region targets-report

// TargetsReport pairs a day's targets with progress so far.
type TargetsReport struct {
	Targets  targets.DailyTargets
	Progress targets.Progress
}

// #endregion

// #region explanation

// Explanation is the plain-language view of a persona.
type Explanation struct {
	Summary   string
	ChangeLog string
}

// #endregion
