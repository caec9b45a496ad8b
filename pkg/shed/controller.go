// Package shed implements the load-shedding controller: an overload
// detector driven by per-event latency samples that decides ingress drop
// probability and, in hybrid mode, the dynamic Kleene cap.
package shed

import (
	"math/rand"

	"go.uber.org/zap"

	"github.com/tripflow/tripflow/internal/model"
)

// Mode selects controller behavior.
type Mode string

const (
	// ModeOff admits everything and never tightens the cap.
	ModeOff Mode = "off"
	// ModeEvent drops ingress events probabilistically under overload.
	ModeEvent Mode = "event"
	// ModeHybrid additionally walks the Kleene cap down under sustained
	// overload, targeting partial-match state directly.
	ModeHybrid Mode = "hybrid"
)

const (
	// ewmaAlpha damps single-event latency spikes.
	ewmaAlpha = 0.2

	// exitHysteresis clears the overloaded flag only once the EWMA falls
	// below this fraction of the target, preventing oscillation.
	exitHysteresis = 0.8

	// maxDropProb bounds the drop probability so ingress never starves
	// completely.
	maxDropProb = 0.9

	// capDecreaseAfter / capIncreaseAfter are the consecutive-sample
	// streaks required before the hybrid cap moves.
	capDecreaseAfter = 3
	capIncreaseAfter = 10
)

// Config parameterizes a Controller.
type Config struct {
	Mode            Mode
	TargetLatencyMs float64
	BaseDropProb    float64
	MaxKleene       int
	Seed            int64
}

// Controller tracks an EWMA of per-event processing latency and adapts
// drop probability and Kleene cap. Owned by the stream driver; the
// matcher reads CurrentCap at the start of each per-event step.
type Controller struct {
	cfg Config
	rng *rand.Rand
	log *zap.SugaredLogger

	ewma       float64
	overloaded bool

	overloadStreak int
	calmStreak     int
	cap            int
}

// NewController creates a controller. Drop decisions use a PRNG seeded
// from cfg.Seed so runs are reproducible.
func NewController(cfg Config, log *zap.SugaredLogger) *Controller {
	return &Controller{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
		log: log,
		cap: cfg.MaxKleene,
	}
}

// Observe feeds the latency sample of the last processed event. Before
// the first sample the EWMA is treated as zero.
func (c *Controller) Observe(latencyMs float64) {
	if c.cfg.Mode == ModeOff {
		return
	}

	c.ewma = ewmaAlpha*latencyMs + (1-ewmaAlpha)*c.ewma

	if c.ewma > c.cfg.TargetLatencyMs {
		c.overloaded = true
	} else if c.ewma < exitHysteresis*c.cfg.TargetLatencyMs {
		c.overloaded = false
	}

	if c.cfg.Mode != ModeHybrid {
		return
	}

	if c.overloaded {
		c.calmStreak = 0
		c.overloadStreak++
		if c.overloadStreak >= capDecreaseAfter && c.cap > 1 {
			c.cap--
			c.overloadStreak = 0
			c.log.Infow("kleene cap tightened",
				"cap", c.cap,
				"ewma_ms", c.ewma,
				"target_ms", c.cfg.TargetLatencyMs,
			)
		}
	} else {
		c.overloadStreak = 0
		c.calmStreak++
		if c.calmStreak >= capIncreaseAfter && c.cap < c.cfg.MaxKleene {
			c.cap++
			c.calmStreak = 0
			c.log.Infow("kleene cap relaxed",
				"cap", c.cap,
				"ewma_ms", c.ewma,
				"target_ms", c.cfg.TargetLatencyMs,
			)
		}
	}
}

// ShouldAdmit decides whether the event enters the matcher. While not
// overloaded the controller never drops; once overloaded it keeps
// dropping until the EWMA falls below the exit hysteresis threshold.
func (c *Controller) ShouldAdmit(_ *model.Event) bool {
	if c.cfg.Mode == ModeOff || !c.overloaded {
		return true
	}
	return c.rng.Float64() >= c.DropProb()
}

// DropProb returns the current drop probability: scaled by how far the
// EWMA overshoots the target, bounded at maxDropProb. Zero when not
// overloaded.
func (c *Controller) DropProb() float64 {
	if c.cfg.Mode == ModeOff || !c.overloaded {
		return 0
	}
	ratio := c.ewma / c.cfg.TargetLatencyMs
	p := c.cfg.BaseDropProb * ratio
	if p > maxDropProb {
		p = maxDropProb
	}
	return p
}

// CurrentCap returns the Kleene cap in effect for the next event. Only
// hybrid mode moves it; other modes hold the configured maximum.
func (c *Controller) CurrentCap() int {
	if c.cfg.Mode != ModeHybrid {
		return c.cfg.MaxKleene
	}
	return c.cap
}

// Overloaded reports the control-loop condition.
func (c *Controller) Overloaded() bool { return c.overloaded }

// EWMA returns the current latency estimate in milliseconds.
func (c *Controller) EWMA() float64 { return c.ewma }

// Mode returns the configured mode.
func (c *Controller) Mode() Mode { return c.cfg.Mode }
