package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/anicoll/relay-controller/internal/pkg/model"
	"github.com/anicoll/relay-controller/internal/pkg/relay"
	"github.com/anicoll/relay-controller/pkg/stream"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type relayBank interface {
	Apply(ctx context.Context, cmd model.Command, source string) error
	States() []bool
}

type connTracker interface {
	Current() model.ConnState
}

type server struct {
	bank      relayBank
	tracker   connTracker
	hub       *stream.Hub
	tokenHash string
	started   time.Time
	logger    *zap.Logger
}

func New(bank relayBank, tracker connTracker, hub *stream.Hub, tokenHash string) *server {
	return &server{
		bank:      bank,
		tracker:   tracker,
		hub:       hub,
		tokenHash: tokenHash,
		started:   time.Now(),
		logger:    zap.L(),
	}
}

// Handler builds the LAN-facing API: status, relay control, live stream.
func (s *server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.getStatus)
	mux.Handle("POST /relay/{id}", s.requireToken(http.HandlerFunc(s.postRelay)))
	mux.Handle("GET /ws", s.hub)
	return LoggingMiddleware(mux)
}

type statusResponse struct {
	ConnectionState string `json:"connection_state"`
	Relays          []bool `json:"relays"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	StreamClients   int    `json:"stream_clients"`
}

func (s *server) getStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		ConnectionState: s.tracker.Current().String(),
		Relays:          s.bank.States(),
		UptimeSeconds:   int64(time.Since(s.started).Seconds()),
		StreamClients:   s.hub.ClientCount(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode status", zap.Error(err))
	}
}

type relayRequest struct {
	Action model.Action `json:"action"`
}

func (s *server) postRelay(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		handleError(w, http.StatusBadRequest, err)
		return
	}
	req, err := unmarshalPayload[relayRequest](r)
	if err != nil {
		handleError(w, http.StatusBadRequest, err)
		return
	}
	if !model.KnownAction(req.Action) {
		handleError(w, http.StatusBadRequest, errors.New("unknown action "+req.Action.String()))
		return
	}

	cmd := model.Command{
		RequestID: uuid.NewString(),
		Action:    req.Action,
		Relay:     &idx,
	}
	if err := s.bank.Apply(r.Context(), cmd, model.SourceAPI); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, relay.ErrRelayIndex) {
			status = http.StatusBadRequest
		}
		handleError(w, status, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("success"))
}

func unmarshalPayload[T any](r *http.Request) (*T, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	payload := new(T)
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func handleError(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	w.Write([]byte(err.Error()))
}
