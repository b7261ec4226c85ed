// internal/rating/level.go
package rating

import "math"

const (
	// LevelCeiling is the level multiplier of a player with no history.
	LevelCeiling = 40.0
	// LevelFloor is the value the multiplier decays toward as history grows.
	LevelFloor = 10.0
	// LevelDecay is the match count over which the multiplier loses ~63% of its excess.
	LevelDecay = 20.0
	// LevelSpread is the historical-average gap that moves the expectation by one logistic unit.
	LevelSpread = 4.0
)

// LevelMultiplier is k(c): large for newcomers so their level adapts quickly, approaching
// LevelFloor for veterans.
func LevelMultiplier(matchCount int) float64 {
	if matchCount < 0 {
		matchCount = 0
	}
	return LevelFloor + (LevelCeiling-LevelFloor)*math.Exp(-float64(matchCount)/LevelDecay)
}

// HistoricalAverage is a player's mean level score per match, 0 without history.
func HistoricalAverage(matchCount int, levelSum float64) float64 {
	if matchCount <= 0 {
		return 0
	}
	return levelSum / float64(matchCount)
}

// Expected is the logistic expected normalized rank of a player whose historical average
// is avg in a field averaging fieldAvg.
func Expected(avg, fieldAvg float64) float64 {
	return 1.0 / (1.0 + math.Exp(-(avg-fieldAvg)/LevelSpread))
}

// LevelScores returns k(c_i) * (actual_i - expected_i) for every player.
func LevelScores(raw []int64, matchCounts []int, levelSums []float64) []float64 {
	n := len(raw)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	avgs := make([]float64, n)
	var field float64
	for i := range raw {
		avgs[i] = HistoricalAverage(at(matchCounts, i), atf(levelSums, i))
		field += avgs[i]
	}
	field /= float64(n)

	actual := RankFractions(raw)
	for i := range raw {
		out[i] = LevelMultiplier(at(matchCounts, i)) * (actual[i] - Expected(avgs[i], field))
	}
	return out
}

func at(s []int, i int) int {
	if i < len(s) {
		return s[i]
	}
	return 0
}

func atf(s []float64, i int) float64 {
	if i < len(s) {
		return s[i]
	}
	return 0
}
