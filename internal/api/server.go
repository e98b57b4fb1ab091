// Package api serves the read-only emergency query endpoint and the
// mission status and abort routes.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tiiuae/patrolengine/internal/ledger"
	"github.com/tiiuae/patrolengine/internal/types"
)

type EmergencyReader interface {
	List() []ledger.EmergencyRecord
	Get(id int64) (ledger.EmergencyRecord, error)
}

type Mission interface {
	Mode() types.MissionMode
	Aborted() bool
	Abort()
	ActiveEmergency() int64
}

type SetpointReader interface {
	Get() types.Setpoint
}

type Server struct {
	emergencies EmergencyReader
	mission     Mission
	setpoints   SetpointReader
	stats       map[string]func() interface{}
	router      *mux.Router
	log         *zap.Logger
}

type Option func(*Server)

// WithStats publishes the counters returned by fn under name on
// /api/v1/stats.
func WithStats(name string, fn func() interface{}) Option {
	return func(s *Server) { s.stats[name] = fn }
}

func NewServer(emergencies EmergencyReader, mission Mission, setpoints SetpointReader, log *zap.Logger, opts ...Option) *Server {
	s := &Server{
		emergencies: emergencies,
		mission:     mission,
		setpoints:   setpoints,
		stats:       make(map[string]func() interface{}),
		router:      mux.NewRouter(),
		log:         log,
	}
	for _, o := range opts {
		o(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// list shape kept for existing dashboards
	s.router.HandleFunc("/emergencies", s.handleListEmergencies).Methods("GET")
	s.router.HandleFunc("/api/v1/emergencies", s.handleListEmergencies).Methods("GET")
	s.router.HandleFunc("/api/v1/emergencies/{id}", s.handleGetEmergency).Methods("GET")

	s.router.HandleFunc("/api/v1/mission", s.handleMissionStatus).Methods("GET")
	s.router.HandleFunc("/api/v1/mission/abort", s.handleAbort).Methods("POST")
	s.router.HandleFunc("/api/v1/stats", s.handleStats).Methods("GET")

	s.router.Use(s.loggingMiddleware)
	s.router.Use(jsonMiddleware)
}

func (s *Server) Router() *mux.Router {
	return s.router
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("http listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.WithMessage(err, "http server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.WithMessage(err, "http shutdown failed")
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("http", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Duration("took", time.Since(start)))
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: false, Error: message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleListEmergencies(w http.ResponseWriter, r *http.Request) {
	records := s.emergencies.List()
	if r.URL.Path == "/emergencies" {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(records)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetEmergency(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}

	rec, err := s.emergencies.Get(id)
	if errors.Is(err, ledger.ErrNotFound) {
		respondError(w, http.StatusNotFound, "emergency not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

type missionStatus struct {
	Mode            types.MissionMode `json:"mode"`
	Aborted         bool              `json:"aborted"`
	ActiveEmergency int64             `json:"active_emergency,omitempty"`
	Setpoint        types.Setpoint    `json:"setpoint"`
}

func (s *Server) handleMissionStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, missionStatus{
		Mode:            s.mission.Mode(),
		Aborted:         s.mission.Aborted(),
		ActiveEmergency: s.mission.ActiveEmergency(),
		Setpoint:        s.setpoints.Get(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]interface{}, len(s.stats))
	for name, fn := range s.stats {
		out[name] = fn()
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	mode := s.mission.Mode()
	if mode == types.ModeLanded {
		respondError(w, http.StatusConflict, "mission already landed")
		return
	}
	s.mission.Abort()
	respondJSON(w, http.StatusAccepted, missionStatus{
		Mode:            mode,
		Aborted:         true,
		ActiveEmergency: s.mission.ActiveEmergency(),
		Setpoint:        s.setpoints.Get(),
	})
}
