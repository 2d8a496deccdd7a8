package models

import (
	"time"
)

// GameStatus represents the lifecycle of a game
type GameStatus string

const (
	GameStatusScheduled  GameStatus = "scheduled"
	GameStatusInProgress GameStatus = "in_progress"
	GameStatusFinal      GameStatus = "final"
)

// Game represents one contest being replayed
type Game struct {
	ID             string     `json:"id" gorm:"primaryKey;size:100"`
	Season         *int       `json:"season,omitempty" gorm:"index:idx_games_season"`
	Week           *int       `json:"week,omitempty"`
	HomeTeam       string     `json:"home_team" gorm:"size:10"`
	AwayTeam       string     `json:"away_team" gorm:"size:10"`
	Status         GameStatus `json:"status" gorm:"index:idx_games_status;size:20;default:scheduled"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinalHomeScore *int       `json:"final_home_score,omitempty"`
	FinalAwayScore *int       `json:"final_away_score,omitempty"`
	CreatedAt      time.Time  `json:"created_at" gorm:"default:CURRENT_TIMESTAMP"`
}

// TableName returns the table name for Game
func (Game) TableName() string {
	return "games"
}

// IsFinal returns true once the replay for this game has completed
func (g *Game) IsFinal() bool {
	return g.Status == GameStatusFinal
}
