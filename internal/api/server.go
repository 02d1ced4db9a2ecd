package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/FairForge/multipath/internal/config"
	"github.com/FairForge/multipath/internal/mapper"
	"github.com/FairForge/multipath/internal/metrics"
	"github.com/FairForge/multipath/internal/mpath"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// DeviceManager is the set of multipath devices the API administers
type DeviceManager interface {
	List() []string
	Get(name string) (*mapper.Target, error)
	Message(name, line string) error
	Status(name string, kind mpath.StatusType) (string, error)
	Suspend(name string, noflush bool) error
	Resume(name string) error
}

type Server struct {
	config     *config.Config
	logger     *zap.Logger
	router     *mux.Router
	httpServer *http.Server
	devices    DeviceManager
	metrics    *metrics.Collector
	limiter    *RateLimiter

	startTime time.Time
}

func NewServer(cfg *config.Config, logger *zap.Logger, devices DeviceManager, collector *metrics.Collector) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}

	s := &Server{
		config:    cfg,
		logger:    logger,
		devices:   devices,
		metrics:   collector,
		limiter:   NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst),
		router:    mux.NewRouter(),
		startTime: time.Now(),
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/version", s.handleVersion).Methods("GET")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	// plain routes rather than a subrouter, so a wrong method gets 405
	limit := RateLimitMiddleware(s.limiter)
	v1 := func(path string, h http.HandlerFunc, method string) {
		s.router.Handle("/api/v1"+path, limit(h)).Methods(method)
	}
	v1("/devices", s.handleListDevices, "GET")
	v1("/devices/{name}", s.handleGetDevice, "GET")
	v1("/devices/{name}/status", s.handleStatus, "GET")
	v1("/devices/{name}/message", s.handleMessage, "POST")
	v1("/devices/{name}/suspend", s.handleSuspend, "POST")
	v1("/devices/{name}/resume", s.handleResume, "POST")
	v1("/devices/{name}/blocks/{offset:[0-9]+}", s.handleReadBlocks, "GET")
	v1("/devices/{name}/blocks/{offset:[0-9]+}", s.handleWriteBlocks, "PUT")
	v1("/devices/{name}/flush", s.handleFlush, "POST")

	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := s.devices.List()
	degraded := 0
	for _, name := range names {
		t, err := s.devices.Get(name)
		if err != nil {
			continue
		}
		if t.Multipath().Snapshot().ValidPaths == 0 {
			degraded++
		}
	}

	status := "healthy"
	if degraded > 0 {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           status,
		"uptime":           time.Since(s.startTime).Seconds(),
		"devices":          len(names),
		"devices_no_paths": degraded,
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": "0.1.0",
		"go":      runtime.Version(),
	})
}

func (s *Server) Start() error {
	s.logger.Info("Starting server", zap.Int("port", s.config.Server.Port))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
