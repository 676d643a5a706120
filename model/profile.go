package model

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultPort     = 27015
	DefaultGame     = "tf2"
	DefaultTemplate = "{base}/maps/{map}.bsp"
)

// Steam app ids for the games the monitor knows about. Unknown identifiers
// leave the app id to the profile ("other" servers supply their own).
var gameAppIDs = map[string]int{
	"tf2":   440,
	"hl2dm": 320,
	"gmod":  4000,
}

// Endpoint is the immutable address of a monitored game server.
type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// ParseEndpoint parses a "host:port" address string. A missing port takes
// DefaultPort; an out-of-range or non-numeric port is an error.
func ParseEndpoint(addr string) (Endpoint, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return Endpoint{}, fmt.Errorf("empty address")
	}

	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return Endpoint{Host: addr, Port: DefaultPort}, nil
	}

	host := strings.TrimSpace(addr[:idx])
	portStr := strings.TrimSpace(addr[idx+1:])
	if host == "" {
		return Endpoint{}, fmt.Errorf("invalid host in %q", addr)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("port must be numeric in %q", addr)
	}
	if port < 1 || port > 65535 {
		return Endpoint{}, fmt.Errorf("port out of range in %q", addr)
	}

	return Endpoint{Host: host, Port: port}, nil
}

// ServerProfile describes one monitored server as persisted in servers.json.
type ServerProfile struct {
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	FastDL       string   `json:"fastdl"`
	Game         string   `json:"game"`
	AppID        *int     `json:"appid"`
	Template     string   `json:"fastdl_template"`
	AutoDownload bool     `json:"auto_download_on_map_change"`
	Endpoint     Endpoint `json:"-"`
}

// Normalize fills defaults for missing optional fields and parses the
// address. Profiles that fail normalization are skipped by the loader.
func (p *ServerProfile) Normalize() error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("profile without a name")
	}

	endpoint, err := ParseEndpoint(p.Address)
	if err != nil {
		return err
	}
	p.Endpoint = endpoint
	p.Address = endpoint.String()

	p.FastDL = NormalizeFastDL(p.FastDL)

	p.Game = strings.ToLower(strings.TrimSpace(p.Game))
	if p.Game == "" {
		p.Game = DefaultGame
	}
	if p.AppID == nil {
		if id, known := gameAppIDs[p.Game]; known {
			appID := id
			p.AppID = &appID
		}
	}

	p.Template = strings.TrimSpace(p.Template)
	if p.Template == "" {
		p.Template = DefaultTemplate
	}

	return nil
}

// NormalizeFastDL strips surrounding whitespace and any trailing slash from
// a FastDL base URL.
func NormalizeFastDL(url string) string {
	url = strings.TrimSpace(url)
	return strings.TrimRight(url, "/")
}

// SafeFolder turns a profile name into a file-system safe directory name.
func SafeFolder(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		if strings.ContainsRune(`<>:"/\|?*`, r) {
			continue
		}
		b.WriteRune(r)
	}
	cleaned := strings.TrimSpace(b.String())
	if cleaned == "" {
		return "server"
	}
	return cleaned
}
