package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Play represents one discrete event in a game.
//
// Sequence is strictly increasing within a game and is the canonical sort key
// for all downstream analytics. PlayNumber is the source-provided number and
// may repeat or skip; it must never be used for ordering.
type Play struct {
	ID               uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	GameID           string    `json:"game_id" gorm:"index:idx_plays_game_seq,priority:1;size:100;not null"`
	PlayNumber       int       `json:"play_number"`
	Sequence         int       `json:"sequence" gorm:"index:idx_plays_game_seq,priority:2;not null"`
	Quarter          int       `json:"quarter"`
	GameClockSeconds int       `json:"game_clock_seconds"` // seconds remaining in quarter
	Down             *int      `json:"down,omitempty"`
	YardsToGo        *int      `json:"yards_to_go,omitempty"`
	YardLineFromOwn  *int      `json:"yard_line_from_own,omitempty"` // 0-50 from own end zone
	PosteamAbbr      *string   `json:"posteam_abbr,omitempty" gorm:"size:10"`
	DefteamAbbr      *string   `json:"defteam_abbr,omitempty" gorm:"size:10"`
	ScoreHome        int       `json:"score_home" gorm:"default:0"`
	ScoreAway        int       `json:"score_away" gorm:"default:0"`
	PlayType         *string   `json:"play_type,omitempty" gorm:"size:50"`
	Description      *string   `json:"description,omitempty" gorm:"type:text"`
	CreatedAt        time.Time `json:"created_at" gorm:"default:CURRENT_TIMESTAMP"`
}

// TableName returns the table name for Play
func (Play) TableName() string {
	return "plays"
}

// ScoreDifferential is always from the home perspective
func (p *Play) ScoreDifferential() int {
	return p.ScoreHome - p.ScoreAway
}

// GameSecondsRemaining approximates total game seconds remaining from
// quarter + quarter clock. Overtime counts as quarter 4 with no quarters left.
func (p *Play) GameSecondsRemaining() int {
	q := p.Quarter
	if q > 4 {
		q = 4
	}
	return (4-q)*900 + p.GameClockSeconds
}

// Junk play types carry no real win-probability signal and are excluded
// from delta computation (their probability still advances the baseline).
var junkPlayTypes = map[string]bool{
	"no_play":        true,
	"qb_kneel":       true,
	"qb_spike":       true,
	"timeout":        true,
	"end_of_quarter": true,
	"end_of_half":    true,
	"end_of_game":    true,
	"extra_point":    true,
}

var junkDescPrefixes = []string{
	"end quarter", "end game", "end of game", "end half",
	"two-minute warning", "end of half",
}

// IsJunk reports whether this is an administrative row with no real
// competitive signal (timeouts, kneels, period markers, rows with no type).
func (p *Play) IsJunk() bool {
	if p.PlayType == nil {
		return true
	}
	if junkPlayTypes[strings.ToLower(*p.PlayType)] {
		return true
	}
	if p.Description != nil {
		desc := strings.ToLower(*p.Description)
		for _, prefix := range junkDescPrefixes {
			if strings.HasPrefix(desc, prefix) {
				return true
			}
		}
	}
	return false
}

// PlayRaw stores the full provider payload for a play, for audit
type PlayRaw struct {
	ID        uuid.UUID      `json:"id" gorm:"primaryKey;type:uuid"`
	PlayID    uuid.UUID      `json:"play_id" gorm:"index:idx_play_raw_play;type:uuid;not null"`
	Provider  string         `json:"provider" gorm:"size:50;not null"`
	Payload   datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	CreatedAt time.Time      `json:"created_at" gorm:"default:CURRENT_TIMESTAMP"`
}

// TableName returns the table name for PlayRaw
func (PlayRaw) TableName() string {
	return "play_raw"
}
