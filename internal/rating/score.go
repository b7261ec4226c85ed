// internal/rating/score.go
package rating

import (
	"math"
	"sort"
)

const (
	// ZeroSumScale (K1) scales the zero-sum component.
	ZeroSumScale = 10.0
	// TopScoreScale (K2) scales the bonus for first place and the penalty for last place.
	TopScoreScale = 10.0
)

// ScoreInfo is one player's result for a finished match.
type ScoreInfo struct {
	GameScore    int64   `json:"game_score"`
	ZeroSumScore float64 `json:"zero_sum_score"`
	TopScore     float64 `json:"top_score"`
	LevelScore   float64 `json:"level_score"`
}

// Calculate derives every player's ScoreInfo from the raw scores of one match plus each
// player's history for the same game. The slices are parallel; multiplier weights the
// zero-sum and top components only.
func Calculate(raw []int64, matchCounts []int, levelSums []float64, multiplier int) []ScoreInfo {
	n := len(raw)
	infos := make([]ScoreInfo, n)
	if n == 0 {
		return infos
	}
	zero := ZeroSumScores(raw)
	top := TopScores(raw)
	level := LevelScores(raw, matchCounts, levelSums)
	for i := range raw {
		infos[i] = ScoreInfo{
			GameScore:    raw[i],
			ZeroSumScore: zero[i] * float64(multiplier),
			TopScore:     top[i] * float64(multiplier),
			LevelScore:   level[i],
		}
	}
	return infos
}

// ZeroSumScores returns (n*s_i - Σs) * n * K1 / D where D = Σ|n*s_j - Σs|. Every score is
// 0 when all raw scores are equal; otherwise the scores sum to 0.
func ZeroSumScores(raw []int64) []float64 {
	n := len(raw)
	out := make([]float64, n)
	var sum int64
	for _, s := range raw {
		sum += s
	}
	var d float64
	for _, s := range raw {
		d += math.Abs(float64(int64(n)*s - sum))
	}
	if d == 0 {
		return out
	}
	for i, s := range raw {
		out[i] = float64(int64(n)*s-sum) * float64(n) * ZeroSumScale / d
	}
	return out
}

// TopScores gives each player tied for the highest raw score +n*K2/ties and each player
// tied for the lowest -n*K2/ties. Nothing is awarded when every score is equal.
func TopScores(raw []int64) []float64 {
	n := len(raw)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	hi, lo := raw[0], raw[0]
	for _, s := range raw[1:] {
		if s > hi {
			hi = s
		}
		if s < lo {
			lo = s
		}
	}
	if hi == lo {
		return out
	}
	hiTies, loTies := 0, 0
	for _, s := range raw {
		if s == hi {
			hiTies++
		}
		if s == lo {
			loTies++
		}
	}
	for i, s := range raw {
		switch s {
		case hi:
			out[i] = float64(n) * TopScoreScale / float64(hiTies)
		case lo:
			out[i] = -float64(n) * TopScoreScale / float64(loTies)
		}
	}
	return out
}

// RankFractions maps each raw score to a normalized rank: 1 for the best, 0 for the worst,
// tied players sharing the midpoint of their ranks. A lone player gets 0.5.
func RankFractions(raw []int64) []float64 {
	n := len(raw)
	out := make([]float64, n)
	if n == 1 {
		out[0] = 0.5
	}
	if n <= 1 {
		return out
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	// descending: best first
	sort.SliceStable(idx, func(a, b int) bool { return raw[idx[a]] > raw[idx[b]] })

	i := 0
	for i < n {
		j := i + 1
		for j < n && raw[idx[j]] == raw[idx[i]] {
			j++
		}
		// players i..j-1 are tied
		avgRank := float64(i+(j-1)) / 2
		fr := 1.0 - avgRank/float64(n-1)
		for k := i; k < j; k++ {
			out[idx[k]] = fr
		}
		i = j
	}
	return out
}
