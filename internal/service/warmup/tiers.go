package warmup

import (
	"fmt"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Tier is one warm-up stage: accounts whose age in whole days falls within
// [FromDay, ToDay] may send up to DailyQuota messages per day. ToDay < 0
// means open-ended.
type Tier struct {
	Number     int `yaml:"tier"`
	FromDay    int `yaml:"from_day"`
	ToDay      int `yaml:"to_day"`
	DailyQuota int `yaml:"daily_quota"`
}

// DefaultSchedule is the standard five-tier ramp. The last tier's quota is a
// safety cap rather than a warm-up limit.
var DefaultSchedule = Schedule{
	{Number: 1, FromDay: 0, ToDay: 7, DailyQuota: 20},
	{Number: 2, FromDay: 8, ToDay: 14, DailyQuota: 50},
	{Number: 3, FromDay: 15, ToDay: 21, DailyQuota: 100},
	{Number: 4, FromDay: 22, ToDay: 28, DailyQuota: 200},
	{Number: 5, FromDay: 29, ToDay: -1, DailyQuota: 500},
}

// Schedule is an ordered list of tiers.
type Schedule []Tier

// Validate checks that tiers are numbered 1..n, contiguous, and end with an
// open-ended tier numbered domain.MaxWarmupTier.
func (s Schedule) Validate() error {
	if len(s) != domain.MaxWarmupTier {
		return fmt.Errorf("warm-up schedule needs %d tiers, got %d", domain.MaxWarmupTier, len(s))
	}
	for i, t := range s {
		if t.Number != i+1 {
			return fmt.Errorf("tier %d out of order", t.Number)
		}
		if t.DailyQuota <= 0 {
			return fmt.Errorf("tier %d quota must be positive", t.Number)
		}
		if i == 0 && t.FromDay != 0 {
			return fmt.Errorf("tier 1 must start at day 0")
		}
		if i > 0 && t.FromDay != s[i-1].ToDay+1 {
			return fmt.Errorf("tier %d does not continue tier %d", t.Number, s[i-1].Number)
		}
		last := i == len(s)-1
		if last && t.ToDay >= 0 {
			return fmt.Errorf("last tier must be open-ended")
		}
		if !last && t.ToDay < t.FromDay {
			return fmt.Errorf("tier %d ends before it starts", t.Number)
		}
	}
	return nil
}

// TierForAge returns the tier containing ageDays. Negative ages (clock skew)
// count as day 0.
func (s Schedule) TierForAge(ageDays int) Tier {
	if ageDays < 0 {
		ageDays = 0
	}
	for _, t := range s {
		if t.ToDay < 0 || ageDays <= t.ToDay {
			return t
		}
	}
	return s[len(s)-1]
}
