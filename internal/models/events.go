package models

// EventType discriminates outbound stream events
type EventType string

const (
	EventTypePlayUpdate     EventType = "play_update"
	EventTypeGameStatus     EventType = "game_status"
	EventTypeReplayComplete EventType = "replay_complete"
)

// ShapFeature is the outward-facing shape of one attribution
type ShapFeature struct {
	FeatureName string  `json:"feature_name"`
	DisplayName string  `json:"display_name"`
	ShapValue   float64 `json:"shap_value"`
}

// PlayUpdateEvent is broadcast after each processed play
type PlayUpdateEvent struct {
	EventType EventType     `json:"event_type"` // always "play_update"
	GameID    string        `json:"game_id"`
	Play      Play          `json:"play"`
	HomeWP    float64       `json:"home_wp"`
	AwayWP    float64       `json:"away_wp"`
	TopShap   []ShapFeature `json:"top_shap"`
}

// GameStatusEvent is broadcast on game lifecycle transitions
type GameStatusEvent struct {
	EventType EventType  `json:"event_type"` // always "game_status"
	GameID    string     `json:"game_id"`
	Status    GameStatus `json:"status"`
	HomeScore int        `json:"home_score"`
	AwayScore int        `json:"away_score"`
}

// ReplayCompleteEvent is the terminal event for a finished replay
type ReplayCompleteEvent struct {
	EventType EventType `json:"event_type"` // always "replay_complete"
	GameID    string    `json:"game_id"`
}

func NewPlayUpdateEvent(gameID string, play Play, homeWP, awayWP float64, topShap []ShapFeature) PlayUpdateEvent {
	return PlayUpdateEvent{
		EventType: EventTypePlayUpdate,
		GameID:    gameID,
		Play:      play,
		HomeWP:    homeWP,
		AwayWP:    awayWP,
		TopShap:   topShap,
	}
}

func NewGameStatusEvent(gameID string, status GameStatus, homeScore, awayScore int) GameStatusEvent {
	return GameStatusEvent{
		EventType: EventTypeGameStatus,
		GameID:    gameID,
		Status:    status,
		HomeScore: homeScore,
		AwayScore: awayScore,
	}
}

func NewReplayCompleteEvent(gameID string) ReplayCompleteEvent {
	return ReplayCompleteEvent{
		EventType: EventTypeReplayComplete,
		GameID:    gameID,
	}
}
