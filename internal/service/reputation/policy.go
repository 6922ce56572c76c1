package reputation

import (
	"fmt"
	"math"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Policy holds the scoring and guard thresholds.
type Policy struct {
	Window time.Duration `yaml:"window"`

	// Complaint rates above ComplaintThreshold cap the target at
	// ComplaintCeiling, lowered by ComplaintSlope per unit of excess rate.
	ComplaintThreshold float64 `yaml:"complaint_threshold"`
	ComplaintCeiling   float64 `yaml:"complaint_ceiling"`
	ComplaintSlope     float64 `yaml:"complaint_slope"`

	BounceThreshold float64 `yaml:"bounce_threshold"`
	BounceCeiling   float64 `yaml:"bounce_ceiling"`
	BounceSlope     float64 `yaml:"bounce_slope"`

	// Windows with fewer than MinSample sends carry no penalty.
	MinSample int `yaml:"min_sample"`

	// The weight given to the new target grows from MinWeight (tiny samples)
	// to 1 at FullConfidenceSends.
	MinWeight           float64 `yaml:"min_weight"`
	FullConfidenceSends int     `yaml:"full_confidence_sends"`

	SuspendAt float64 `yaml:"suspend_at"`
	RestoreAt float64 `yaml:"restore_at"`
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{
		Window:              24 * time.Hour,
		ComplaintThreshold:  0.001,
		ComplaintCeiling:    40,
		ComplaintSlope:      4000,
		BounceThreshold:     0.05,
		BounceCeiling:       70,
		BounceSlope:         300,
		MinSample:           10,
		MinWeight:           0.3,
		FullConfidenceSends: 50,
		SuspendAt:           70,
		RestoreAt:           85,
	}
}

// Validate rejects policies whose guard band is empty or inverted.
func (p Policy) Validate() error {
	if p.SuspendAt >= p.RestoreAt {
		return fmt.Errorf("suspend threshold %.1f must be below restore threshold %.1f", p.SuspendAt, p.RestoreAt)
	}
	if p.SuspendAt < 0 || p.RestoreAt > 100 {
		return fmt.Errorf("thresholds must lie within [0,100]")
	}
	if p.MinWeight <= 0 || p.MinWeight > 1 {
		return fmt.Errorf("min weight %.2f must be in (0,1]", p.MinWeight)
	}
	if p.Window <= 0 {
		return fmt.Errorf("window must be positive")
	}
	if p.ComplaintCeiling > p.BounceCeiling {
		return fmt.Errorf("complaint ceiling must not exceed bounce ceiling")
	}
	return nil
}

// Target maps window counts to the score the account is heading toward.
// Complaints are penalized harder than bounces; with both, the lower wins.
func (p Policy) Target(c domain.SignalCounts) float64 {
	target := 100.0
	if c.Sent < p.MinSample {
		return target
	}
	if r := c.ComplaintRate(); r > p.ComplaintThreshold {
		target = math.Min(target, math.Max(0, p.ComplaintCeiling-p.ComplaintSlope*(r-p.ComplaintThreshold)))
	}
	if r := c.BounceRate(); r > p.BounceThreshold {
		target = math.Min(target, math.Max(0, p.BounceCeiling-p.BounceSlope*(r-p.BounceThreshold)))
	}
	return target
}

// Weight is the share of the new target blended into the score for a window
// with sent messages.
func (p Policy) Weight(sent int) float64 {
	if p.FullConfidenceSends <= 0 || sent >= p.FullConfidenceSends {
		return 1
	}
	return p.MinWeight + (1-p.MinWeight)*float64(sent)/float64(p.FullConfidenceSends)
}

// Score blends the previous score toward the target and clamps to [0,100].
func (p Policy) Score(prev float64, c domain.SignalCounts) float64 {
	w := p.Weight(c.Sent)
	return clamp((1-w)*prev+w*p.Target(c), 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
