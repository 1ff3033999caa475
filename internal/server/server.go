package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"VoiceOrder/internal/hub"
	"VoiceOrder/internal/order"
	"VoiceOrder/internal/orders"
	"VoiceOrder/internal/payment"
	"VoiceOrder/internal/session"
	"VoiceOrder/internal/voiceorder"
)

// Server exposes the order service, payment bridge, and realtime hub
// over HTTP.
type Server struct {
	svc      *voiceorder.Service
	bridge   *payment.Bridge
	orders   *orders.Store
	hub      *hub.Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New creates the HTTP server surface
func New(svc *voiceorder.Service, bridge *payment.Bridge, ordersStore *orders.Store, h *hub.Hub, logger *slog.Logger) *Server {
	return &Server{
		svc:    svc,
		bridge: bridge,
		orders: ordersStore,
		hub:    h,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Displays are served from kiosk hardware on the local
			// network; origin checks happen upstream.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/order/process", s.handleProcess)
	mux.HandleFunc("POST /api/order/complete", s.handleComplete)
	mux.HandleFunc("POST /api/payment/intent", s.handleCreateIntent)
	mux.HandleFunc("POST /api/payment/confirm", s.handleConfirm)
	mux.HandleFunc("GET /api/orders/active", s.handleActiveOrders)
	mux.HandleFunc("POST /api/orders/{id}/status", s.handleSetStatus)
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

type processRequest struct {
	Transcript  string `json:"transcript"`
	SessionID   string `json:"session_id"`
	TableNumber string `json:"table_number,omitempty"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Transcript == "" {
		s.writeError(w, http.StatusBadRequest, "transcript is required")
		return
	}

	result, err := s.svc.Process(r.Context(), req.Transcript, req.SessionID, req.TableNumber)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type completeRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.svc.Complete(r.Context(), req.SessionID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type intentRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	var req intentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.bridge.CreateIntent(r.Context(), req.SessionID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type confirmRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PaymentIntentID == "" {
		s.writeError(w, http.StatusBadRequest, "payment_intent_id is required")
		return
	}

	result, err := s.bridge.Confirm(r.Context(), req.PaymentIntentID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleActiveOrders(w http.ResponseWriter, r *http.Request) {
	active, err := s.orders.Active(r.Context())
	if err != nil {
		s.logger.Error("failed to load active orders", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load active orders")
		return
	}
	if active == nil {
		active = []orders.Order{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"orders": active})
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.orders.SetStatus(r.Context(), orderID, orders.Status(req.Status)); err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "order not found")
			return
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	event := hub.NewEnvelope("order-status-changed", map[string]string{
		"orderId": orderID,
		"status":  req.Status,
	})
	s.hub.Broadcast(event, "kitchen")
	s.hub.Broadcast(event, "orders")

	s.writeJSON(w, http.StatusOK, map[string]string{"order_id": orderID, "status": req.Status})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	// the read loop runs in this handler goroutine; returning would
	// cancel the request context mid-connection
	s.hub.ServeConn(r.Context(), conn)
}

// writeServiceError maps domain errors onto HTTP statuses. Session and
// order errors are client errors; anything else is a collaborator
// failure passed through as a gateway error.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, order.ErrEmptyOrder):
		s.writeError(w, http.StatusBadRequest, "order is empty")
	case errors.Is(err, order.ErrInvalidTotal):
		s.writeError(w, http.StatusBadRequest, "order total must be positive")
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
