// Package api serves the HTTP surface: chat-platform webhooks, conversation
// inspection, health and Prometheus metrics. It also builds the MCP server
// exposing the same inspection data as tools.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kalambet/caseflow/internal/orchestrator"
	"github.com/kalambet/caseflow/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxRequestBodySize = 1 << 20 // 1MB

// TurnRunner runs an orchestrator turn for a stored event.
type TurnRunner interface {
	ProcessEvent(ctx context.Context, eventID int64) (orchestrator.Result, error)
}

type Deps struct {
	Store *storage.Store
	// Turns is used by the synchronous replay endpoint.
	Turns TurnRunner
	Token string
}

// NewRouter returns the HTTP handler. /health and /metrics are open; every
// other route requires the bearer token.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/webhooks/events", handleWebhookEvent(deps))
		r.Get("/conversations/{id}", handleGetState(deps))
		r.Get("/conversations/{id}/demands", handleListDemands(deps))
		r.Get("/conversations/{id}/solution", handleGetSolution(deps))
		r.Get("/conversations/{id}/log", handleDispatchLog(deps))
		r.Post("/conversations/{id}/process", handleProcess(deps))
	})

	return r
}

// BearerAuth rejects requests whose Authorization header does not carry token.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const prefix = "Bearer "
			auth := r.Header.Get("Authorization")
			if token == "" || !strings.HasPrefix(auth, prefix) ||
				subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.Ping(); err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "database unavailable: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
