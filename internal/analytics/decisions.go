package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/stitts-dev/clutchfactor/internal/models"
)

const (
	decisionsDefaultTop = 10
	decisionsMaxTop     = 50
)

// Fourth-down action labels
const (
	ActionGoForIt   = "go_for_it"
	ActionPunt      = "punt"
	ActionFieldGoal = "field_goal"
)

// Grade bands on decisionDelta (actual minus best, always <= 0). Inclusive
// lower bounds, checked in order.
var gradeBands = []struct {
	threshold float64
	label     string
}{
	{-0.005, "Optimal"},
	{-0.020, "Questionable"},
	{-0.050, "Bad"},
	{math.Inf(-1), "Very Bad"},
}

// League-average 4th-down conversion rates by yards-to-go bucket, from
// historical nflfastR aggregates. Fixed parameter table, not model output.
var conversionRates = []struct {
	lo, hi int
	rate   float64
}{
	{1, 1, 0.68},
	{2, 2, 0.62},
	{3, 3, 0.56},
	{4, 5, 0.50},
	{6, 10, 0.38},
	{11, 99, 0.22},
}

// DecisionOption is one counterfactual action's estimated win probability.
// A nil option means the action's precondition was not met (out of range),
// not that it was worth zero.
type DecisionOption struct {
	Wp     float64 `json:"wp"`
	Detail string  `json:"detail"`
}

// CoachDecision grades one fourth-down call against its counterfactuals
type CoachDecision struct {
	Play          PlayRef                    `json:"play_ref"`
	Situation     string                     `json:"situation"`
	ActualType    string                     `json:"actual_type"`
	ActualWpAfter float64                    `json:"actual_wp_after"`
	Alternatives  map[string]*DecisionOption `json:"alternatives"`
	BestAction    string                     `json:"best_action"`
	DecisionDelta float64                    `json:"decision_delta"`
	Grade         string                     `json:"grade"`
}

type DecisionReport struct {
	GameID    string          `json:"game_id"`
	Decisions []CoachDecision `json:"decisions"`
}

func grade(decisionDelta float64) string {
	for _, band := range gradeBands {
		if decisionDelta >= band.threshold {
			return band.label
		}
	}
	return "Very Bad"
}

func conversionRate(yardsToGo *int) float64 {
	ydg := 10
	if yardsToGo != nil {
		ydg = *yardsToGo
	}
	for _, bucket := range conversionRates {
		if ydg >= bucket.lo && ydg <= bucket.hi {
			return bucket.rate
		}
	}
	return 0.22
}

// fgMakeProb approximates P(field goal made) for a kick distance in yards
// with a logistic curve calibrated to league averages (20 yd ~0.98,
// 40 yd ~0.87, 50 yd ~0.72, 60 yd ~0.52).
func fgMakeProb(kickDistance float64) float64 {
	return 1.0 / (1.0 + math.Exp(0.10*(kickDistance-37)))
}

// puntExpectedFieldPos estimates the opponent's field position (distance
// from their own end zone) after a league-average net punt, with the
// touchback floor at the 25.
func puntExpectedFieldPos(yardline100 int) int {
	newPos := yardline100 - 42
	if newPos < 25 {
		return 25
	}
	return newPos
}

// classifyActual maps a fourth-down play to the action actually taken.
// Returns "" when the play is none of the three gradeable actions.
func classifyActual(play models.Play) string {
	pt := ""
	if play.PlayType != nil {
		pt = strings.ToLower(*play.PlayType)
	}
	desc := ""
	if play.Description != nil {
		desc = strings.ToLower(*play.Description)
	}

	switch {
	case pt == "punt":
		return ActionPunt
	case pt == "field_goal" || pt == "fg" || strings.Contains(desc, "field goal"):
		return ActionFieldGoal
	case pt == "run" || pt == "pass" || pt == "qb_scramble" ||
		pt == "pass_incomplete" || pt == "pass_complete":
		return ActionGoForIt
	case strings.Contains(pt, "pass") || strings.Contains(pt, "rush") || strings.Contains(pt, "run"):
		return ActionGoForIt
	}
	return ""
}

func situationString(play models.Play) string {
	ydg := "?"
	if play.YardsToGo != nil {
		ydg = fmt.Sprintf("%d", *play.YardsToGo)
	}
	field := "?"
	if play.YardLineFromOwn != nil {
		yl := *play.YardLineFromOwn
		if yl <= 50 {
			field = fmt.Sprintf("OWN %d", yl)
		} else {
			field = fmt.Sprintf("OPP %d", 100-yl)
		}
	}
	return fmt.Sprintf("4th & %s at %s", ydg, field)
}

// buildCounterfactuals estimates the win probability of each available
// fourth-down action, anchored on the probability immediately before the
// play. Each action is a binary outcome blended by its success probability:
//
//	wp_action = p_success*wp_success_state + (1-p_success)*wp_fail_state
//
// with state probabilities approximated as wpBefore shifted by deltas that
// depend on field position, distance, and time pressure. Actions whose
// precondition fails (punt in the red zone, kick out of range) are nil.
func buildCounterfactuals(play models.Play, wpBefore float64) map[string]*DecisionOption {
	yardline100 := 50
	if play.YardLineFromOwn != nil {
		yardline100 = 100 - *play.YardLineFromOwn
	}
	pConv := conversionRate(play.YardsToGo)
	gsr := play.GameSecondsRemaining()
	timePressure := 1.0 - float64(gsr)/3600.0

	alternatives := make(map[string]*DecisionOption, 3)

	// Go for it: success keeps the ball (more valuable near the opponent's
	// end zone), failure hands it over on downs (worse deep in own territory)
	fieldValue := float64(100-yardline100) / 100.0
	successGain := 0.08 + 0.10*fieldValue
	failLoss := 0.12 + 0.08*(1-fieldValue)

	wpSuccess := math.Min(wpBefore+successGain, 0.97)
	wpFail := math.Max(wpBefore-failLoss, 0.03)
	wpGo := pConv*wpSuccess + (1-pConv)*wpFail
	alternatives[ActionGoForIt] = &DecisionOption{
		Wp:     round4(wpGo),
		Detail: fmt.Sprintf("p_conv=%.0f%%", pConv*100),
	}

	// Punt: only sensible outside field-goal range. Each 10 yards of field
	// position pushed onto the opponent is worth roughly 0.03 WP, blended
	// heavily toward the pre-play baseline to avoid unrealistic jumps.
	if yardline100 > 45 {
		oppFieldPos := puntExpectedFieldPos(yardline100)
		netYards := yardline100 - oppFieldPos
		fieldPosBenefit := float64(netYards) / 10.0 * 0.03
		sign := 1.0
		if wpBefore < 0.50 {
			sign = -1.0
		}
		wpPunt := math.Max(math.Min(0.50+fieldPosBenefit*sign, 0.75), 0.25)
		wpPunt = 0.4*wpPunt + 0.6*wpBefore
		alternatives[ActionPunt] = &DecisionOption{
			Wp:     round4(wpPunt),
			Detail: fmt.Sprintf("expected_net=%d yds", netYards),
		}
	} else {
		alternatives[ActionPunt] = nil
	}

	// Field goal: viable within ~52 yards of the opponent's goal line.
	// Three points matter more when the game is close and time is short.
	if yardline100 <= 52 {
		kickDist := float64(yardline100 + 17)
		pFG := fgMakeProb(kickDist)
		ptsValue := 0.05 + 0.06*timePressure
		if diff := play.ScoreDifferential(); diff <= 3 && diff >= -3 {
			ptsValue *= 1.5
		}
		wpMade := math.Min(wpBefore+ptsValue, 0.95)
		missPenalty := 0.04 + 0.06*timePressure
		wpMiss := math.Max(wpBefore-missPenalty, 0.05)
		wpFG := pFG*wpMade + (1-pFG)*wpMiss
		alternatives[ActionFieldGoal] = &DecisionOption{
			Wp:     round4(wpFG),
			Detail: fmt.Sprintf("p_make=%.0f%%, dist=%.0f yds", pFG*100, kickDist),
		}
	} else {
		alternatives[ActionFieldGoal] = nil
	}

	return alternatives
}

// DecisionGrades grades every fourth-down call in the game against
// counterfactual estimates of the other available actions, sorted by how
// costly the call was.
func (e *Engine) DecisionGrades(ctx context.Context, gameID string, top int) (*DecisionReport, error) {
	top = clampTop(top, decisionsDefaultTop, decisionsMaxTop)

	pairs, _, err := e.loadPairs(ctx, gameID)
	if err != nil {
		return nil, err
	}

	report := &DecisionReport{GameID: gameID, Decisions: []CoachDecision{}}
	if len(pairs) < 2 {
		return report, nil
	}

	prevWP := pairs[0].Prediction.HomeWP
	for _, pair := range pairs {
		play := pair.Play
		wpAfter := pair.Prediction.HomeWP

		if play.Down == nil || *play.Down != 4 || play.IsJunk() {
			prevWP = wpAfter
			continue
		}
		desc := ""
		if play.Description != nil {
			desc = strings.ToLower(*play.Description)
		}
		// Victory-formation fourth downs are not decisions
		if strings.Contains(desc, "kneel") || strings.Contains(desc, "victory") {
			prevWP = wpAfter
			continue
		}

		actualType := classifyActual(play)
		if actualType == "" {
			prevWP = wpAfter
			continue
		}

		alternatives := buildCounterfactuals(play, prevWP)

		bestAction := ""
		bestWP := math.Inf(-1)
		for _, action := range []string{ActionGoForIt, ActionPunt, ActionFieldGoal} {
			if opt := alternatives[action]; opt != nil && opt.Wp > bestWP {
				bestAction = action
				bestWP = opt.Wp
			}
		}
		if bestAction == "" {
			prevWP = wpAfter
			continue
		}

		// If the action actually taken had no modeled counterfactual, fall
		// back to the observed probability after the play
		actualWP := wpAfter
		if opt := alternatives[actualType]; opt != nil {
			actualWP = opt.Wp
		}
		decisionDelta := actualWP - bestWP

		report.Decisions = append(report.Decisions, CoachDecision{
			Play:          playRef(play),
			Situation:     situationString(play),
			ActualType:    actualType,
			ActualWpAfter: round4(wpAfter),
			Alternatives:  alternatives,
			BestAction:    bestAction,
			DecisionDelta: round4(decisionDelta),
			Grade:         grade(decisionDelta),
		})
		prevWP = wpAfter
	}

	sort.SliceStable(report.Decisions, func(i, j int) bool {
		return math.Abs(report.Decisions[i].DecisionDelta) > math.Abs(report.Decisions[j].DecisionDelta)
	})
	if len(report.Decisions) > top {
		report.Decisions = report.Decisions[:top]
	}
	return report, nil
}
