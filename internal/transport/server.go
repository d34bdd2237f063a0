package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	nuts "github.com/vaudience/go-nuts"

	"github.com/drone-control/dcg/internal/auth"
	"github.com/drone-control/dcg/internal/command"
	"github.com/drone-control/dcg/internal/gateway"
	"github.com/drone-control/dcg/internal/session"
)

// Server exposes the gateway over WebSocket and HTTP.
type Server struct {
	gw       *gateway.Gateway
	verifier *auth.Verifier
	router   *mux.Router
	srv      *http.Server
	upgrader websocket.Upgrader
}

// NewServer creates the transport server.
func NewServer(gw *gateway.Gateway, verifier *auth.Verifier) *Server {
	s := &Server{
		gw:       gw,
		verifier: verifier,
		router:   mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin policy belongs to the fronting proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/ws/drone/{id}", s.handleDrone)
	s.router.HandleFunc("/ws/operator/{id}", s.handleOperator)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/drones/{id}", s.handleDroneStatus).Methods(http.MethodGet)
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
	}
	nuts.L.Infof("[Transport] Listening on %s", addr)
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.gw.Status())
}

func (s *Server) handleDroneStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.gw.DroneStatus(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"code": session.ErrNotFound.Error()})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// errorCode maps a gateway error to its wire code.
func errorCode(err error) string {
	for _, sentinel := range []error{
		session.ErrDuplicateSession,
		session.ErrNotFound,
		command.ErrUnknownDrone,
		command.ErrIllegalTransition,
		command.ErrStaleCommand,
		command.ErrMalformedPayload,
		command.ErrDroneUnreachable,
		command.ErrCommandTimedOut,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "INTERNAL"
}
