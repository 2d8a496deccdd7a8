package analytics

import (
	"context"
	"math"
	"sort"
)

// Clutch formula parameters: the clutch window opens over the last ~15
// minutes of game time, and closeness decays at the scale of one touchdown.
const (
	clutchTimeThreshold = 900.0
	clutchTimeTau       = 300.0
	clutchScoreScale    = 7.0

	clutchDefaultTop = 5
	clutchMaxTop     = 20
	clutchTopDrives  = 5
)

// ClutchPlay is one play scored by how much its swing mattered
type ClutchPlay struct {
	Rank        int     `json:"rank"`
	Play        PlayRef `json:"play_ref"`
	DeltaWp     float64 `json:"delta_wp"`
	ClutchScore float64 `json:"clutch_score"`
	TimeFactor  float64 `json:"time_factor"`
	CloseFactor float64 `json:"close_factor"`
	ScoreDiff   int     `json:"score_diff"`
}

// ClutchDrive aggregates clutch score over one possession
type ClutchDrive struct {
	DriveNumber int     `json:"drive_number"`
	PosteamAbbr *string `json:"posteam_abbr"`
	ClutchTotal float64 `json:"clutch_total"`
	PlayCount   int     `json:"play_count"`
}

// ClutchTeamTotals splits a team's clutch credit between its units
type ClutchTeamTotals struct {
	Offense float64 `json:"offense"`
	Defense float64 `json:"defense"`
}

type ClutchReport struct {
	GameID     string                      `json:"game_id"`
	TopPlays   []ClutchPlay                `json:"top_plays"`
	TopDrives  []ClutchDrive               `json:"top_drives"`
	TeamTotals map[string]ClutchTeamTotals `json:"team_totals"`
}

type clutchScored struct {
	scoredDelta
	clutch      float64
	timeFactor  float64
	closeFactor float64
	scoreDiff   int
}

func timeFactor(gameSecondsRemaining int) float64 {
	return sigmoid((clutchTimeThreshold - float64(gameSecondsRemaining)) / clutchTimeTau)
}

// ClutchIndex scores every non-junk play by magnitude scaled with time
// pressure and game closeness, then aggregates by drive and by team unit.
func (e *Engine) ClutchIndex(ctx context.Context, gameID string, topPlays int) (*ClutchReport, error) {
	topPlays = clampTop(topPlays, clutchDefaultTop, clutchMaxTop)

	pairs, game, err := e.loadPairs(ctx, gameID)
	if err != nil {
		return nil, err
	}

	report := &ClutchReport{
		GameID:    gameID,
		TopPlays:  []ClutchPlay{},
		TopDrives: []ClutchDrive{},
		TeamTotals: map[string]ClutchTeamTotals{
			"home": {},
			"away": {},
		},
	}
	if len(pairs) < 2 {
		return report, nil
	}

	scored := make([]clutchScored, 0, len(pairs)-1)
	for _, d := range computeDeltas(pairs) {
		gsr := d.pair.Play.GameSecondsRemaining()
		tf := timeFactor(gsr)
		scoreDiff := d.pair.Play.ScoreDifferential()
		cf := math.Exp(-math.Abs(float64(scoreDiff)) / clutchScoreScale)
		scored = append(scored, clutchScored{
			scoredDelta: d,
			clutch:      d.magnitude * tf * cf,
			timeFactor:  tf,
			closeFactor: cf,
			scoreDiff:   scoreDiff,
		})
	}

	report.TopPlays = topClutchPlays(scored, topPlays)
	report.TopDrives = topClutchDrives(scored)

	homeOff, homeDef, awayOff, awayDef := 0.0, 0.0, 0.0, 0.0
	for _, cs := range scored {
		isHomePos := cs.pair.Play.PosteamAbbr != nil && *cs.pair.Play.PosteamAbbr == game.HomeTeam
		// The possessing offense gets credit when the swing favoured it;
		// otherwise the opposing defense earned the stop.
		if isHomePos {
			if cs.delta > 0 {
				homeOff += cs.clutch
			} else {
				awayDef += cs.clutch
			}
		} else {
			if cs.delta < 0 {
				awayOff += cs.clutch
			} else {
				homeDef += cs.clutch
			}
		}
	}
	report.TeamTotals["home"] = ClutchTeamTotals{Offense: round3(homeOff), Defense: round3(homeDef)}
	report.TeamTotals["away"] = ClutchTeamTotals{Offense: round3(awayOff), Defense: round3(awayDef)}

	return report, nil
}

func topClutchPlays(scored []clutchScored, top int) []ClutchPlay {
	ranked := make([]clutchScored, len(scored))
	copy(ranked, scored)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].clutch > ranked[j].clutch })
	if len(ranked) > top {
		ranked = ranked[:top]
	}

	out := make([]ClutchPlay, 0, len(ranked))
	for i, cs := range ranked {
		out = append(out, ClutchPlay{
			Rank:        i + 1,
			Play:        playRef(cs.pair.Play),
			DeltaWp:     cs.delta,
			ClutchScore: round4(cs.clutch),
			TimeFactor:  round4(cs.timeFactor),
			CloseFactor: round4(cs.closeFactor),
			ScoreDiff:   cs.scoreDiff,
		})
	}
	return out
}

// topClutchDrives groups chronologically consecutive plays by possession
// team (any change of posteam starts a new drive, including to or from an
// unknown posteam) and ranks drives by summed clutch score.
func topClutchDrives(scored []clutchScored) []ClutchDrive {
	type drive struct {
		number  int
		posteam *string
		total   float64
		count   int
	}

	var drives []drive
	var current *drive
	for _, cs := range scored {
		posteam := cs.pair.Play.PosteamAbbr
		if current == nil || !samePosteam(current.posteam, posteam) {
			drives = append(drives, drive{number: len(drives) + 1, posteam: posteam})
			current = &drives[len(drives)-1]
		}
		current.total += cs.clutch
		current.count++
	}

	sort.SliceStable(drives, func(i, j int) bool { return drives[i].total > drives[j].total })
	if len(drives) > clutchTopDrives {
		drives = drives[:clutchTopDrives]
	}

	out := make([]ClutchDrive, 0, len(drives))
	for _, d := range drives {
		out = append(out, ClutchDrive{
			DriveNumber: d.number,
			PosteamAbbr: d.posteam,
			ClutchTotal: round4(d.total),
			PlayCount:   d.count,
		})
	}
	return out
}

func samePosteam(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
