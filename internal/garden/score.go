package garden

// GrowthScore weighs views, votes and shares into the ranking score.
func GrowthScore(u Unit) float64 {
	return 0.3*float64(u.ViewCount) + 0.5*float64(u.NetVoteScore) + 0.2*u.ShareHours
}

// WeightedGrowth is GrowthScore scaled by the unit's reputation multiplier.
// Bloom decisions and discovery ranking use this value.
func WeightedGrowth(u Unit) float64 {
	return GrowthScore(u) * ClampReputation(u.ReputationMultiplier)
}

// EngagementScore favors shares and votes over raw views.
func EngagementScore(u Unit) float64 {
	return float64(u.ViewCount) + 2*float64(u.NetVoteScore) + 5*u.ShareHours
}

// ClampReputation bounds a reputation value to [0, 2].
func ClampReputation(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 2:
		return 2
	}
	return v
}
