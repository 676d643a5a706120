package main

import (
	"log"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"

	"gitlab.com/kiverix/reployer/download"
	"gitlab.com/kiverix/reployer/events"
	"gitlab.com/kiverix/reployer/model"
	"gitlab.com/kiverix/reployer/monitor"
	"gitlab.com/kiverix/reployer/monstore"
	"gitlab.com/kiverix/reployer/profiles"
	"gitlab.com/kiverix/reployer/server"
	"gitlab.com/kiverix/reployer/views"
)

type ServerConfig struct {
	Addr          string `default:"0.0.0.0"`
	Port          int    `default:"8080"`
	Ttl           int    `default:"60"`
	PollInterval  int    `default:"5"`
	PollTimeout   int    `default:"5"`
	PollWorkers   int    `default:"6"`
	ServersFile   string `default:"servers.json"`
	PrefsFile     string `default:"prefs.json"`
	DownloadsRoot string `default:"downloads"`
	LogsRoot      string `default:"logs"`
	ViewsFeed     string `default:""`
}

func main() {
	config := new(ServerConfig)
	envconfig.MustProcess("reployer", config)

	logger := log.New(os.Stdout, "Reployer > ", log.LstdFlags)

	profileList, err := profiles.LoadServers(config.ServersFile)
	if err != nil {
		logger.Fatalf("Could not load %s: %s", config.ServersFile, err)
	}
	if len(profileList) == 0 {
		logger.Fatalf("No usable server profiles in %s", config.ServersFile)
	}

	prefs := profiles.LoadPrefs(config.PrefsFile)

	bus := events.NewBus()
	store := monstore.New(time.Duration(config.Ttl) * time.Second)
	pool := monitor.NewPool(config.PollWorkers)
	downloads := download.NewManager()

	// The wire-level query backend is injected as a capability; builds
	// without one degrade to a steady OFFLINE presentation. Integrations
	// replace this with any monitor.Querier that turns an endpoint into a
	// decoded model.PollOutcome.
	querier := monitor.Unavailable("query backend not available")

	monitors := make(map[string]*monitor.Monitor, len(profileList))
	for _, profile := range profileList {
		mon, monErr := monitor.New(monitor.Config{
			Profile:       profile,
			Querier:       querier,
			Pool:          pool,
			Bus:           bus,
			Store:         store,
			Downloads:     downloads,
			DownloadsRoot: config.DownloadsRoot,
			LogsRoot:      config.LogsRoot,
			PollInterval:  time.Duration(config.PollInterval) * time.Second,
			PollTimeout:   time.Duration(config.PollTimeout) * time.Second,
			Prefs:         func() model.Prefs { return prefs },
		})
		if monErr != nil {
			logger.Fatalf("Could not set up monitor for %s: %s", profile.Name, monErr)
		}
		monitors[profile.Name] = mon
		mon.Start()
	}

	if config.ViewsFeed != "" {
		viewLog, logErr := views.OpenLog(config.LogsRoot)
		if logErr != nil {
			logger.Fatalf("Could not open views log: %s", logErr)
		}
		views.NewMonitor(config.ViewsFeed, bus, viewLog).Start()
	}

	apiServer := server.New(config.Addr, config.Port, store, bus, profileList, monitors)
	if err := apiServer.Start(); err != nil {
		panic(err)
	}
}
