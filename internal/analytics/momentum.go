package analytics

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/stitts-dev/clutchfactor/internal/models"
	"github.com/stitts-dev/clutchfactor/internal/store"
)

const (
	momentumDefaultTop = 3
	momentumMaxTop     = 10
)

// MomentumSwing is one of the largest win-probability moves in a game.
// Deltas are always from the home-team perspective.
type MomentumSwing struct {
	Rank           int     `json:"rank"`
	Play           PlayRef `json:"play_ref"`
	WpBefore       float64 `json:"wp_before"`
	WpAfter        float64 `json:"wp_after"`
	DeltaWp        float64 `json:"delta_wp"`
	Magnitude      float64 `json:"magnitude"`
	Tag            string  `json:"tag"`
	IsTurningPoint bool    `json:"is_turning_point"`
}

type MomentumReport struct {
	GameID string          `json:"game_id"`
	Swings []MomentumSwing `json:"swings"`
}

type scoredDelta struct {
	magnitude float64
	delta     float64
	wpBefore  float64
	pair      store.PlayWithPrediction
}

// tagPlay labels a swing by inspecting its description and type. First match
// wins; tags are mutually exclusive.
func tagPlay(play models.Play) string {
	desc := ""
	if play.Description != nil {
		desc = strings.ToLower(*play.Description)
	}
	pt := ""
	if play.PlayType != nil {
		pt = strings.ToLower(*play.PlayType)
	}

	switch {
	case strings.Contains(desc, "intercept") || strings.Contains(desc, "fumble"):
		return "turnover"
	case strings.Contains(desc, "touchdown") || strings.Contains(desc, " td"):
		return "touchdown"
	case strings.Contains(desc, "field goal") && strings.Contains(desc, "good"):
		return "field_goal"
	case play.Down != nil && *play.Down == 4 &&
		(pt == "run" || pt == "pass" || pt == "pass_incomplete" || pt == "pass_complete"):
		return "fourth_down"
	}
	return "none"
}

// MomentumSwings returns the top-N largest win-probability swings, presented
// in chronological order with ranks assigned by magnitude. Rank 1 is the
// game's turning point.
func (e *Engine) MomentumSwings(ctx context.Context, gameID string, top int) (*MomentumReport, error) {
	top = clampTop(top, momentumDefaultTop, momentumMaxTop)

	pairs, _, err := e.loadPairs(ctx, gameID)
	if err != nil {
		return nil, err
	}

	report := &MomentumReport{GameID: gameID, Swings: []MomentumSwing{}}
	if len(pairs) < 2 {
		return report, nil
	}

	deltas := computeDeltas(pairs)

	sort.SliceStable(deltas, func(i, j int) bool { return deltas[i].magnitude > deltas[j].magnitude })
	if len(deltas) > top {
		deltas = deltas[:top]
	}

	// Ranks follow magnitude order; the output list is chronological
	ranks := make(map[int]int, len(deltas))
	for i, d := range deltas {
		ranks[d.pair.Play.Sequence] = i + 1
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i].pair.Play.Sequence < deltas[j].pair.Play.Sequence })

	for _, d := range deltas {
		rank := ranks[d.pair.Play.Sequence]
		report.Swings = append(report.Swings, MomentumSwing{
			Rank:           rank,
			Play:           playRef(d.pair.Play),
			WpBefore:       d.wpBefore,
			WpAfter:        d.pair.Prediction.HomeWP,
			DeltaWp:        d.delta,
			Magnitude:      d.magnitude,
			Tag:            tagPlay(d.pair.Play),
			IsTurningPoint: rank == 1,
		})
	}
	return report, nil
}

// computeDeltas walks the pair list computing per-play home-WP deltas. Junk
// plays are excluded from the result but still advance the previous-WP
// baseline, so the next real play's delta spans them.
func computeDeltas(pairs []store.PlayWithPrediction) []scoredDelta {
	deltas := make([]scoredDelta, 0, len(pairs)-1)
	prevWP := pairs[0].Prediction.HomeWP

	for _, pair := range pairs[1:] {
		if pair.Play.IsJunk() {
			prevWP = pair.Prediction.HomeWP
			continue
		}
		delta := pair.Prediction.HomeWP - prevWP
		deltas = append(deltas, scoredDelta{
			magnitude: math.Abs(delta),
			delta:     delta,
			wpBefore:  prevWP,
			pair:      pair,
		})
		prevWP = pair.Prediction.HomeWP
	}
	return deltas
}
