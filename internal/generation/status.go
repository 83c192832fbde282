package generation

import (
	"fmt"
	"time"
)

// Phase is the coordinator lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDispatched
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseDispatched:
		return "dispatched"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Status is a progress update for display.
type Status struct {
	Fraction float64
	ETA      time.Duration
	HasETA   bool
	Text     string
}

// FormatStatus renders "42%" with an optional " ETA: m:ss" or " ETA: Ns".
func FormatStatus(fraction float64, eta time.Duration, hasETA bool) string {
	text := fmt.Sprintf("%d%%", int(fraction*100))
	if !hasETA {
		return text
	}
	secs := int(eta / time.Second)
	if minutes := secs / 60; minutes > 0 {
		return fmt.Sprintf("%s ETA: %d:%02d", text, minutes, secs%60)
	}
	return fmt.Sprintf("%s ETA: %ds", text, secs)
}

// etaTracker anchors the clock at the first report with nonzero progress.
type etaTracker struct {
	now    func() time.Time
	anchor time.Time
}

func (t *etaTracker) status(p Progress) Status {
	s := Status{Fraction: p.Fraction}
	if p.Fraction > 0 {
		now := t.now()
		if t.anchor.IsZero() {
			t.anchor = now
		} else {
			s.ETA = time.Duration(float64(now.Sub(t.anchor)) / p.Fraction)
			s.HasETA = true
		}
	}
	s.Text = FormatStatus(s.Fraction, s.ETA, s.HasETA)
	return s
}
