package providers

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// CSVReplayProvider reads an nflfastR play-by-play CSV, filters to a single
// source game id, and yields normalized GameState records at a configurable
// rate.
//
// nflfastR column mapping:
//
//	qtr                        -> Quarter
//	quarter_seconds_remaining  -> GameClockSeconds
//	game_seconds_remaining     -> GameSecondsRemaining
//	ydstogo / yards_to_go      -> YardsToGo
//	yardline_100               -> Yardline100
//	posteam / defteam          -> PosteamAbbr / DefteamAbbr
//	total_home_score/_away_    -> ScoreHome / ScoreAway
//	play_type, desc            -> PlayType, Description
type CSVReplayProvider struct {
	header         map[string]int
	rows           [][]string
	sourceGameID   string
	playsPerSecond float64
	logger         *logrus.Logger
}

// NewCSVReplayProvider loads and filters the CSV up front so a bad file or an
// unknown game id fails at start, not mid-replay.
func NewCSVReplayProvider(csvPath, sourceGameID string, playsPerSecond float64, logger *logrus.Logger) (*CSVReplayProvider, error) {
	if playsPerSecond <= 0 {
		playsPerSecond = 1.0
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open replay CSV: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse replay CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("replay CSV %s has no data rows", csvPath)
	}

	header := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		header[name] = i
	}

	gameCol, hasGameCol := header["game_id"]
	var rows [][]string
	for _, rec := range records[1:] {
		if !hasGameCol || (gameCol < len(rec) && rec[gameCol] == sourceGameID) {
			rows = append(rows, rec)
		}
	}
	if !hasGameCol {
		logger.Warn("No 'game_id' column in CSV, using all rows")
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no plays found for game_id=%q in %s (check the nflfastR game_id format, e.g. '2022_20_CIN_KC')", sourceGameID, csvPath)
	}

	logger.WithFields(logrus.Fields{
		"csv":     csvPath,
		"game_id": sourceGameID,
		"plays":   len(rows),
		"speed":   playsPerSecond,
	}).Info("Loaded replay CSV")

	return &CSVReplayProvider{
		header:         header,
		rows:           rows,
		sourceGameID:   sourceGameID,
		playsPerSecond: playsPerSecond,
		logger:         logger,
	}, nil
}

// Name returns the provider identity recorded on raw payload rows
func (p *CSVReplayProvider) Name() string {
	return "csv_replay"
}

// Stream yields one normalized play per pacing tick until the game is
// exhausted or ctx is cancelled. The returned channel is closed either way.
func (p *CSVReplayProvider) Stream(ctx context.Context) <-chan GameState {
	out := make(chan GameState)
	delay := time.Duration(float64(time.Second) / p.playsPerSecond)

	go func() {
		defer close(out)
		ticker := time.NewTicker(delay)
		defer ticker.Stop()

		for seq, row := range p.rows {
			gs := p.normalize(row, seq)
			select {
			case out <- gs:
			case <-ctx.Done():
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// Metadata resolves teams, season and week from the first row
func (p *CSVReplayProvider) Metadata() (GameMeta, error) {
	first := p.rows[0]
	return GameMeta{
		GameID:     p.sourceGameID,
		HomeTeam:   p.str(first, "home_team"),
		AwayTeam:   p.str(first, "away_team"),
		Season:     p.intVal(first, "season"),
		Week:       p.intVal(first, "week"),
		TotalPlays: len(p.rows),
	}, nil
}

func (p *CSVReplayProvider) normalize(row []string, sequence int) GameState {
	yardline100 := p.intVal(row, "yardline_100")
	var yardLineFromOwn *int
	if yardline100 != nil {
		v := 100 - *yardline100
		yardLineFromOwn = &v
	}

	scoreHome := intOrZero(p.intVal(row, "total_home_score"))
	scoreAway := intOrZero(p.intVal(row, "total_away_score"))

	yardsToGo := p.intVal(row, "yards_to_go")
	if yardsToGo == nil {
		yardsToGo = p.intVal(row, "ydstogo")
	}

	posteam := p.str(row, "posteam")
	homeTeam := p.str(row, "home_team")
	posteamIsHome := 0
	if posteam != nil && homeTeam != nil && *posteam == *homeTeam {
		posteamIsHome = 1
	}

	// receive_2h_ko: whoever did not get the opening kickoff receives the
	// second-half kickoff
	homeOpeningKickoff := intOrZero(p.intVal(row, "home_opening_kickoff"))
	receive2hKo := 0
	if homeOpeningKickoff != posteamIsHome {
		receive2hKo = 1
	}

	return GameState{
		GameID:                   p.sourceGameID,
		PlayNumber:               sequence + 1,
		Sequence:                 sequence,
		Quarter:                  intOrDefault(p.intVal(row, "qtr"), 1),
		GameClockSeconds:         intOrZero(p.intVal(row, "quarter_seconds_remaining")),
		Down:                     p.intVal(row, "down"),
		YardsToGo:                yardsToGo,
		Yardline100:              yardline100,
		YardLineFromOwn:          yardLineFromOwn,
		ScoreHome:                scoreHome,
		ScoreAway:                scoreAway,
		ScoreDifferential:        scoreHome - scoreAway,
		PosteamAbbr:              posteam,
		DefteamAbbr:              p.str(row, "defteam"),
		PosteamIsHome:            posteamIsHome,
		Receive2hKo:              receive2hKo,
		PosteamTimeoutsRemaining: intOrDefault(p.intVal(row, "posteam_timeouts_remaining"), 3),
		DefteamTimeoutsRemaining: intOrDefault(p.intVal(row, "defteam_timeouts_remaining"), 3),
		GameSecondsRemaining:     intOrZero(p.intVal(row, "game_seconds_remaining")),
		HalfSecondsRemaining:     intOrZero(p.intVal(row, "half_seconds_remaining")),
		SpreadLine:               p.floatVal(row, "spread_line"),
		ExpectedPoints:           p.floatVal(row, "ep"),
		PlayType:                 p.str(row, "play_type"),
		Description:              p.str(row, "desc"),
		RawPayload:               p.rawPayload(row),
	}
}

func (p *CSVReplayProvider) rawPayload(row []string) map[string]interface{} {
	payload := make(map[string]interface{}, len(p.header))
	for name, idx := range p.header {
		if idx >= len(row) {
			continue
		}
		if v := row[idx]; v != "" && v != "NA" {
			payload[name] = v
		}
	}
	return payload
}

func (p *CSVReplayProvider) cell(row []string, col string) string {
	idx, ok := p.header[col]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func (p *CSVReplayProvider) intVal(row []string, col string) *int {
	f := p.floatVal(row, col)
	if f == nil {
		return nil
	}
	v := int(*f)
	return &v
}

func (p *CSVReplayProvider) floatVal(row []string, col string) *float64 {
	s := strings.TrimSpace(p.cell(row, col))
	if s == "" || s == "NA" || strings.EqualFold(s, "nan") {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func (p *CSVReplayProvider) str(row []string, col string) *string {
	s := strings.TrimSpace(p.cell(row, col))
	if s == "" || s == "NA" {
		return nil
	}
	return &s
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func intOrDefault(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
