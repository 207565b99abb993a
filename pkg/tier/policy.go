package tier

import "time"

// promotionTarget is the next hotter tier; promotion never skips tiers.
func promotionTarget(t Tier) Tier {
	switch t {
	case Cold:
		return Warm
	case Warm:
		return Hot
	default:
		return ""
	}
}

// ShouldAutoPromote decides whether a just-accessed entry warrants moving
// to a hotter tier, and which one.
func (c *Config) ShouldAutoPromote(e Entry) (Tier, bool) {
	if c.PromotionPolicy == PromotionNone || e.Tier == Hot {
		return "", false
	}

	target := promotionTarget(e.Tier)
	if target == "" || !c.Enabled(target) {
		return "", false
	}
	if max := c.MaxSize(target); max >= 0 && e.Size > max {
		return "", false
	}

	switch c.PromotionPolicy {
	case PromotionAggressive:
		return target, true
	case PromotionOnAccess:
		if len(e.RecentAccesses) >= c.PromotionThreshold {
			return target, true
		}
	}
	return "", false
}

// ShouldDemote decides whether an entry has aged out of its tier, and
// where it goes. Disabled tiers are skipped, so hot can demote straight to
// cold when warm is off.
func (c *Config) ShouldDemote(e Entry, now time.Time) (Tier, bool) {
	if c.DemotionPolicy != DemotionOnAge || e.Tier == Cold {
		return "", false
	}

	var maxAge time.Duration
	switch e.Tier {
	case Hot:
		maxAge = c.HotMaxAge
	case Warm:
		maxAge = c.WarmMaxAge
	default:
		return "", false
	}
	if now.Sub(e.LastAccess) <= maxAge {
		return "", false
	}

	for target := e.Tier.Next(); target != ""; target = target.Next() {
		if c.Enabled(target) {
			return target, true
		}
	}
	return "", false
}
