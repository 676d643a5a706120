package model

// SoundSettings is the sound sub-record of the preferences file. Playback
// itself is the UI's concern; the monitor only round-trips the values and
// honors Muted when deciding whether cue events carry an audible flag.
type SoundSettings struct {
	Muted  bool    `json:"muted"`
	Volume float64 `json:"volume"`
}

// Prefs is the flat preferences record persisted to prefs.json.
type Prefs struct {
	MinimizeToTray       bool          `json:"minimize_to_tray"`
	PlayerAlertThreshold int           `json:"player_alert_threshold"`
	AlertOnMapChange     bool          `json:"alert_on_map_change"`
	Sound                SoundSettings `json:"sound"`
	GraphWindowMinutes   int           `json:"graph_window_minutes"`
}

// DefaultPrefs mirrors the defaults applied when prefs.json is missing or
// partially filled.
func DefaultPrefs() Prefs {
	return Prefs{
		MinimizeToTray:       true,
		PlayerAlertThreshold: 0,
		AlertOnMapChange:     true,
		Sound:                SoundSettings{Muted: false, Volume: 0.5},
		GraphWindowMinutes:   15,
	}
}

// ClampGraphWindow snaps an arbitrary minute count onto the supported graph
// windows.
func ClampGraphWindow(minutes int) int {
	switch {
	case minutes <= 5:
		return 5
	case minutes <= 15:
		return 15
	default:
		return 60
	}
}
