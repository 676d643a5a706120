package model

import "time"

// RawPlayer is one roster entry as decoded from a single server query. The
// query protocol carries no persistent player IDs, so the only identity
// material is the name (possibly still empty right after connect), the score
// and the connected duration.
type RawPlayer struct {
	Name     string  `json:"name"`
	Score    int     `json:"score"`
	Duration float64 `json:"duration"`
}

// PollOutcome is the decoded result of one query round-trip. It is produced
// fresh for every poll and never mutated afterwards. Ok is false on any
// transport or protocol failure, in which case Error carries the reason and
// the remaining fields are zero.
type PollOutcome struct {
	Ok          bool        `json:"ok"`
	ServerName  string      `json:"server_name"`
	MapName     string      `json:"map_name"`
	PlayerCount int         `json:"player_count"`
	MaxPlayers  int         `json:"max_players"`
	Players     []RawPlayer `json:"players"`
	Error       string      `json:"error,omitempty"`
}

// PlayerRow is one rendered roster line with its stable slot number.
type PlayerRow struct {
	Slot int    `json:"slot"`
	Line string `json:"line"`
}

// ServerStatus is the latest UI-facing snapshot for one monitored server.
type ServerStatus struct {
	Profile     string      `json:"profile"`
	ServerName  string      `json:"server_name"`
	MapName     string      `json:"map_name"`
	PlayerCount int         `json:"player_count"`
	MaxPlayers  int         `json:"max_players"`
	Players     []PlayerRow `json:"players"`
	State       string      `json:"state"`
	Stale       bool        `json:"stale"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
