package providers

import "context"

// GameState is one normalized play record passed to the prediction pipeline.
// Nullable source cells are represented as nil pointers.
type GameState struct {
	GameID                   string
	PlayNumber               int
	Sequence                 int
	Quarter                  int
	GameClockSeconds         int // seconds remaining in quarter
	Down                     *int
	YardsToGo                *int
	Yardline100              *int // distance from opponent end zone (1-99)
	YardLineFromOwn          *int // 0-50 from own end zone (for storage)
	ScoreHome                int
	ScoreAway                int
	ScoreDifferential        int // home - away (always home perspective)
	PosteamAbbr              *string
	DefteamAbbr              *string
	PosteamIsHome            int // 1 if possession team is the home team
	Receive2hKo              int // 1 if possession team receives 2nd-half kickoff
	PosteamTimeoutsRemaining int
	DefteamTimeoutsRemaining int
	GameSecondsRemaining     int
	HalfSecondsRemaining     int
	SpreadLine               *float64
	ExpectedPoints           *float64
	PlayType                 *string
	Description              *string
	RawPayload               map[string]interface{}
}

// GameMeta is basic game info resolvable before streaming begins
type GameMeta struct {
	GameID     string  `json:"game_id"`
	HomeTeam   *string `json:"home_team"`
	AwayTeam   *string `json:"away_team"`
	Season     *int    `json:"season"`
	Week       *int    `json:"week"`
	TotalPlays int     `json:"total_plays"`
}

// Provider yields normalized play records for one game at some pace. Stream
// returns a channel that is closed after the last play; cancelling ctx stops
// the stream at the next pacing tick.
type Provider interface {
	Stream(ctx context.Context) <-chan GameState
	Metadata() (GameMeta, error)
	Name() string
}
