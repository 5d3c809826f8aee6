package detector

import (
	"log/slog"
	"time"

	"github.com/savilabs/savi-core/internal/config"
	"github.com/savilabs/savi-core/internal/slidectx"
)

// State of the detector's damping machine.
type State int

const (
	Monitoring State = iota
	Suspect
	Declared
)

func (s State) String() string {
	switch s {
	case Monitoring:
		return "monitoring"
	case Suspect:
		return "suspect"
	case Declared:
		return "declared"
	default:
		return "unknown"
	}
}

// Score is the pure comparison of speech against the active slide.
// Empty summaries (silence, blank slide) score 0; callers gate on the
// window having real content before acting on that.
func Score(speech slidectx.SpeechContext, slide slidectx.SlideContext) float64 {
	return speech.Summary.Cosine(slide.Summary)
}

// Reading is one similarity observation fed to the detector.
type Reading struct {
	Similarity float64
	At         time.Time
	Segments   int // segments currently in the speech window
}

// Event is emitted when a deviation is declared. Zero value means no
// event.
type Event struct {
	Declared   bool
	Similarity float64
	At         time.Time
}

// Detector damps raw similarity readings into at most one declaration
// per cooldown window: MONITORING → SUSPECT (below threshold,
// counting) → DECLARED (cooldown armed) → MONITORING. A reading that
// recovers above threshold during SUSPECT debounces back to
// MONITORING. During cooldown every reading is suppressed, high or
// low, until a new slide arms the detector again or the cooldown
// elapses; continued low similarity past the cooldown permits a second
// declaration for the same slide.
type Detector struct {
	cfg    config.DetectorConfig
	logger *slog.Logger

	state        State
	belowCount   int
	suspectSince time.Time
	declaredAt   time.Time
}

func New(cfg config.DetectorConfig, logger *slog.Logger) *Detector {
	return &Detector{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "deviation-detector")),
		state:  Monitoring,
	}
}

// State reports the current machine state.
func (d *Detector) State() State {
	return d.state
}

// ResetForSlide re-arms the detector after a slide change, manual or
// automatic.
func (d *Detector) ResetForSlide() {
	d.state = Monitoring
	d.belowCount = 0
	d.suspectSince = time.Time{}
	d.declaredAt = time.Time{}
}

// Observe consumes one reading and returns a declaration event if the
// sustain criterion was just met. Never returns more than one declared
// event per cooldown window.
func (d *Detector) Observe(r Reading) Event {
	if r.Segments < d.cfg.MinSpeechSegments {
		return Event{}
	}
	below := r.Similarity < d.cfg.SimilarityThreshold

	switch d.state {
	case Monitoring:
		if !below {
			return Event{}
		}
		// the reading that opens the suspicion does not count toward
		// sustain; similarity must *remain* low after the drop
		d.state = Suspect
		d.belowCount = 0
		d.suspectSince = r.At
	case Suspect:
		if !below {
			// debounce: similarity recovered before sustain met
			d.state = Monitoring
			d.belowCount = 0
			d.suspectSince = time.Time{}
			return Event{}
		}
		d.belowCount++
		if d.sustained(r.At) {
			return d.declare(r)
		}
	case Declared:
		if !d.cooldownElapsed(r.At) {
			// cooldown suppresses every reading, high or low; only a
			// slide change re-arms earlier
			return Event{}
		}
		if !below {
			d.state = Monitoring
			d.belowCount = 0
			d.declaredAt = time.Time{}
			return Event{}
		}
		// continued low similarity past cooldown allows a second
		// declaration for the same slide
		d.state = Suspect
		d.belowCount = 0
		d.suspectSince = r.At
	}
	return Event{}
}

func (d *Detector) sustained(at time.Time) bool {
	if d.belowCount < d.cfg.SustainSegments {
		return false
	}
	if d.cfg.SustainWindowMS > 0 && !d.suspectSince.IsZero() {
		window := time.Duration(d.cfg.SustainWindowMS) * time.Millisecond
		if at.Sub(d.suspectSince) > window {
			// counted readings spread over too long a span; restart the
			// count from this reading
			d.belowCount = 1
			d.suspectSince = at
			return false
		}
	}
	return true
}

func (d *Detector) cooldownElapsed(at time.Time) bool {
	cooldown := time.Duration(d.cfg.CooldownMS) * time.Millisecond
	return !d.declaredAt.IsZero() && at.Sub(d.declaredAt) >= cooldown
}

func (d *Detector) declare(r Reading) Event {
	d.state = Declared
	d.declaredAt = r.At
	d.belowCount = 0
	d.logger.Info("deviation declared",
		slog.Float64("similarity", r.Similarity),
		slog.Time("at", r.At))
	return Event{Declared: true, Similarity: r.Similarity, At: r.At}
}
