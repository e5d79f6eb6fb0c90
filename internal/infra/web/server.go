package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-match-bridge/internal/domain"
	"telegram-match-bridge/internal/domain/ports/repository"
	"telegram-match-bridge/internal/infra/logging"
)

// Server exposes the ops surface: health, metrics, and a read-only JWT-guarded
// view of sessions for support tooling. It never mutates anything.
type Server struct {
	sessions repository.ChatSessionRepository
	auth     *AuthManager
	log      *zerolog.Logger
}

func NewServer(sessions repository.ChatSessionRepository, auth *AuthManager, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "OpsServer").Logger()
	return &Server{sessions: sessions, auth: auth, log: &l}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := logging.WithTraceID(req.Context(), middleware.GetReqID(req.Context()))
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Get("/sessions/{id}/messages", s.handleGetMessages)
	})
	return r
}

// ListenAndServe blocks until the listener fails or the server is shut down.
func (s *Server) ListenAndServe(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.log.Info().Str("addr", addr).Msg("ops server listening")
	return http.ListenAndServe(addr, s.Router())
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type sessionView struct {
	SessionID    string     `json:"session_id"`
	MatchID      int64      `json:"match_id"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActivity time.Time  `json:"last_activity"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.FindBySessionID(r.Context(), nil, chi.URLParam(r, "id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	// Participant ids are deliberately omitted: support staff see session
	// state, not who is talking to whom.
	s.writeJSON(w, sessionView{
		SessionID:    session.SessionID,
		MatchID:      session.MatchID,
		Status:       string(session.Status),
		CreatedAt:    session.CreatedAt,
		LastActivity: session.LastActivity,
		EndedAt:      session.EndedAt,
	})
}

type messageView struct {
	ID          string    `json:"id"`
	ContentType string    `json:"content_type"`
	IsRead      bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	msgs, err := s.sessions.Messages(r.Context(), nil, chi.URLParam(r, "id"), limit)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	// Metadata only; message bodies never leave the store through this API.
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageView{
			ID:          m.ID,
			ContentType: string(m.ContentType),
			IsRead:      m.IsRead,
			CreatedAt:   m.CreatedAt,
		})
	}
	s.writeJSON(w, out)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("response encoding failed")
	}
}

func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	logging.With(r.Context(), s.log).Error().Err(err).Msg("ops api error")
	http.Error(w, "internal error", http.StatusInternalServerError)
}
