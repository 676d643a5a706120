package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gitlab.com/kiverix/reployer/events"
	"gitlab.com/kiverix/reployer/model"
	"gitlab.com/kiverix/reployer/monitor"
	"gitlab.com/kiverix/reployer/monstore"
)

// Defines the public API of the monitor server. The server relays everything
// the per-profile monitors produce (status snapshots, history windows and
// the live event stream) to external UI clients, which consume this data as
// a service without running their own poller.
type Server interface {
	// Starts the server in the current thread and blocks until an error occurs.
	Start() error
	// Stops the server
	Stop() error
}

type server struct {
	addr       string
	port       int
	limiter    *ClientLimiter
	logger     *log.Logger
	store      monstore.Store
	bus        *events.Bus
	profiles   []model.ServerProfile
	monitors   map[string]*monitor.Monitor
	httpServer *http.Server
	upgrader   *websocket.Upgrader
}

// Creates a new monitor server, listening on a given address and port.
func New(addr string, port int, store monstore.Store, bus *events.Bus,
	profileList []model.ServerProfile, monitors map[string]*monitor.Monitor) Server {
	return &server{
		addr,
		port,
		NewClientLimiter(),
		log.New(os.Stdout, "API-Server > ", log.LstdFlags),
		store,
		bus,
		profileList,
		monitors,
		nil,
		&websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(request *http.Request) bool {
				return true
			},
		},
	}
}

func (s *server) routes() http.Handler {
	router := mux.NewRouter()

	router.Path("/profiles").Methods("GET").HandlerFunc(s.handleProfiles)
	router.Path("/status/{profile}").Methods("GET").HandlerFunc(s.handleStatus)
	router.Path("/status/{profile}/live").Methods("GET").HandlerFunc(s.handleStatusStream)
	router.Path("/history/{profile}").Methods("GET").HandlerFunc(s.handleHistory)
	router.Path("/download/{profile}").Methods("POST").HandlerFunc(s.handleDownloadStart)
	router.Path("/download/{profile}").Methods("DELETE").HandlerFunc(s.handleDownloadCancel)

	router.Path("/websocket").Methods("GET").HandlerFunc(s.handleWebsocket)
	router.Path("/metrics").Methods("GET").Handler(promhttp.Handler())

	router.NotFoundHandler = http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		s.logger.Printf("Unmatched request: %s %s\n", request.Method, request.URL)
		writer.WriteHeader(http.StatusNotFound)
	})

	return s.limiter.Middleware(router)
}

func (s *server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.addr, s.port),
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.logger.Printf("Starting monitor server on %s:%d\n", s.addr, s.port)
	return s.httpServer.ListenAndServe()
}

func (s *server) Stop() error {
	s.logger.Printf("Stopping monitor server on %s:%d\n", s.addr, s.port)

	s.store.Close()
	s.bus.Close()
	return s.httpServer.Shutdown(context.Background())
}

func (s *server) monitorFor(request *http.Request) (*monitor.Monitor, string, bool) {
	name := mux.Vars(request)["profile"]
	mon, present := s.monitors[name]
	return mon, name, present
}

func (s *server) handleProfiles(writer http.ResponseWriter, request *http.Request) {
	s.writeJSON(writer, request, s.profiles)
}

func (s *server) handleStatus(writer http.ResponseWriter, request *http.Request) {
	_, name, present := s.monitorFor(request)
	if !present {
		writer.WriteHeader(http.StatusNotFound)
		return
	}

	status, hasStatus := s.store.Get(name)
	if !hasStatus {
		s.logger.Printf("%s - No snapshot yet for %s\n", request.RemoteAddr, name)
		writer.WriteHeader(http.StatusNotFound)
		return
	}

	s.writeJSON(writer, request, status)
}

// handleStatusStream pushes every snapshot change for one profile over a
// websocket. A nil push means the snapshot was evicted, so clients learn the
// server went silent without polling.
func (s *server) handleStatusStream(writer http.ResponseWriter, request *http.Request) {
	_, name, present := s.monitorFor(request)
	if !present {
		writer.WriteHeader(http.StatusNotFound)
		return
	}

	conn, upgradeError := s.upgrader.Upgrade(writer, request, nil)
	if upgradeError != nil {
		s.logger.Printf("%s - Could not upgrade websocket connection for %s: %s\n", request.RemoteAddr, name, upgradeError)
		return
	}

	channel := s.store.GetChannel(name)

	for {
		status, more := <-channel
		if ioError := conn.WriteJSON(status); ioError != nil || !more {
			if ioError != nil {
				s.logger.Printf("%s - Could not write snapshot for %s: %s\n", request.RemoteAddr, name, ioError)
			}
			_ = conn.Close()
			s.store.ReleaseChannel(name)
			return
		}
	}
}

func (s *server) handleHistory(writer http.ResponseWriter, request *http.Request) {
	mon, name, present := s.monitorFor(request)
	if !present {
		writer.WriteHeader(http.StatusNotFound)
		return
	}

	minutes := model.DefaultPrefs().GraphWindowMinutes
	if raw := request.URL.Query().Get("minutes"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writer.WriteHeader(http.StatusBadRequest)
			return
		}
		minutes = model.ClampGraphWindow(parsed)
	}

	rows, err := mon.History().Window(time.Duration(minutes)*time.Minute, time.Now())
	if err != nil {
		s.logger.Printf("%s - Could not read history for %s: %s\n", request.RemoteAddr, name, err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}

	s.writeJSON(writer, request, rows)
}

func (s *server) handleDownloadStart(writer http.ResponseWriter, request *http.Request) {
	mon, name, present := s.monitorFor(request)
	if !present {
		writer.WriteHeader(http.StatusNotFound)
		return
	}

	body, ioError := ioutil.ReadAll(request.Body)
	if ioError != nil || len(body) == 0 {
		s.logger.Printf("%s - Empty download request received: %s\n", request.RemoteAddr, ioError)
		writer.WriteHeader(http.StatusBadRequest)
		return
	}

	var payload struct {
		Map string `json:"map"`
	}
	if jsonError := json.Unmarshal(body, &payload); jsonError != nil || payload.Map == "" {
		s.logger.Printf("%s - Could not de-serialize download request: %v\n", request.RemoteAddr, jsonError)
		writer.WriteHeader(http.StatusBadRequest)
		return
	}

	if !mon.StartDownload(payload.Map) {
		// Already in flight; the rejection was announced on the event stream.
		writer.WriteHeader(http.StatusConflict)
		return
	}

	s.logger.Printf("%s - Download of %s started for %s\n", request.RemoteAddr, payload.Map, name)
	writer.WriteHeader(http.StatusAccepted)
}

func (s *server) handleDownloadCancel(writer http.ResponseWriter, request *http.Request) {
	mon, name, present := s.monitorFor(request)
	if !present {
		writer.WriteHeader(http.StatusNotFound)
		return
	}

	if !mon.CancelDownload() {
		writer.WriteHeader(http.StatusNotFound)
		return
	}

	s.logger.Printf("%s - Download cancelled for %s\n", request.RemoteAddr, name)
	writer.WriteHeader(http.StatusAccepted)
}

func (s *server) handleWebsocket(writer http.ResponseWriter, request *http.Request) {
	conn, upgradeError := s.upgrader.Upgrade(writer, request, nil)
	if upgradeError != nil {
		s.logger.Printf("%s - Could not upgrade websocket connection: %s\n", request.RemoteAddr, upgradeError)
		return
	}

	id, channel := s.bus.Subscribe()

	for event := range channel {
		if ioError := conn.WriteJSON(event); ioError != nil {
			s.logger.Printf("%s - Could not write event: %s\n", request.RemoteAddr, ioError)
			_ = conn.Close()
			s.bus.Unsubscribe(id)
			return
		}
	}

	_ = conn.Close()
}

func (s *server) writeJSON(writer http.ResponseWriter, request *http.Request, payload interface{}) {
	response, jsonError := json.Marshal(payload)
	if jsonError != nil {
		s.logger.Printf("%s - Could not serialize response: %s\n", request.RemoteAddr, jsonError)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}

	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(http.StatusOK)

	if _, ioError := writer.Write(response); ioError != nil {
		s.logger.Printf("%s - Could not write response: %s\n", request.RemoteAddr, ioError)
	}
}

// clientIP strips the port from a RemoteAddr for rate-limit bucketing.
func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
