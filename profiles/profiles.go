// Package profiles persists the server profile list and the user
// preferences as plain JSON files next to the binary, the same files the
// desktop UI reads and writes.
package profiles

import (
	"encoding/json"
	"io/ioutil"
	"os"

	"gitlab.com/kiverix/reployer/model"
)

const (
	ServersFileName = "servers.json"
	PrefsFileName   = "prefs.json"
)

// LoadServers reads the ordered profile list. A missing file is an empty
// list; entries that fail normalization are skipped rather than aborting
// the load.
func LoadServers(path string) ([]model.ServerProfile, error) {
	data, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var raw []model.ServerProfile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	loaded := make([]model.ServerProfile, 0, len(raw))
	for _, profile := range raw {
		if normErr := profile.Normalize(); normErr != nil {
			continue
		}
		loaded = append(loaded, profile)
	}
	return loaded, nil
}

// SaveServers writes the profile list, preserving order.
func SaveServers(path string, servers []model.ServerProfile) error {
	data, err := json.MarshalIndent(servers, "", "  ")
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, data, 0o644)
}

// LoadPrefs reads the preferences record. A missing or unreadable file
// yields the defaults; fields absent from the file keep their defaults.
func LoadPrefs(path string) model.Prefs {
	prefs := model.DefaultPrefs()

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return prefs
	}
	if err := json.Unmarshal(data, &prefs); err != nil {
		return model.DefaultPrefs()
	}

	prefs.GraphWindowMinutes = model.ClampGraphWindow(prefs.GraphWindowMinutes)
	return prefs
}

// SavePrefs writes the preferences record.
func SavePrefs(path string, prefs model.Prefs) error {
	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, data, 0o644)
}
