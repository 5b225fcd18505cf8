package storage

import "time"

// ActionRecord is one remote mutation sent by this client.
type ActionRecord struct {
	OccurredAt time.Time
	Action     string
	TargetID   string
	Mode       string // single | bulk
	Result     string // ok | error
	Error      string
}

// ActionStats aggregates the action log per action.
type ActionStats struct {
	Action   string
	OKCount  int
	ErrCount int
	LastSent time.Time
}

// ViewStateRow is a stored table view state.
type ViewStateRow struct {
	TableKey  string
	StateJSON string
	UpdatedAt time.Time
}
