package correlation

import (
	"context"
	"time"

	"github.com/miradorstack/mirador-correlator/internal/models"
)

// DefaultWindow is the time window used when none is configured.
const DefaultWindow = 300 * time.Second

// TimeWindow scores alerts by how soon after the incident's last update they arrive.
type TimeWindow struct {
	window time.Duration
}

// NewTimeWindow constructs a TimeWindow strategy; non-positive windows fall back to DefaultWindow.
func NewTimeWindow(window time.Duration) *TimeWindow {
	if window <= 0 {
		window = DefaultWindow
	}
	return &TimeWindow{window: window}
}

// Name implements Strategy.
func (t *TimeWindow) Name() string { return StrategyTimeWindow }

// Score implements Strategy.
func (t *TimeWindow) Score(_ context.Context, _ string, alert models.Alert, incident models.Incident) (float64, error) {
	return t.ScoreGap(alert.ReceivedAt.Sub(incident.UpdatedAt)), nil
}

// ScoreGap applies linear decay to the gap between the incident update and the alert.
func (t *TimeWindow) ScoreGap(gap time.Duration) float64 {
	if gap < 0 || gap >= t.window {
		return 0
	}
	return clamp01(1 - gap.Seconds()/t.window.Seconds())
}

// Window returns the configured window.
func (t *TimeWindow) Window() time.Duration { return t.window }
