package api

import (
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"

	"github.com/vnmchuo/interview-gateway/internal/auth"
)

// AdminTokenHeader carries the token for /internal routes.
const AdminTokenHeader = "X-Admin-Token"

func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFrom(r.Context())
	profile := h.catalog.Get(string(id.Tier))

	today, err := h.usage.Today(r.Context(), id.UserID)
	if err != nil {
		h.logger.Error("failed to load usage", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load usage")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tier":  id.Tier,
		"usage": today,
		"limits": map[string]any{
			"requestsPerMinute": profile.RequestsPerMinute,
			"dailyAiTokens":     profile.DailyAITokens,
			"dailyTtsChars":     profile.DailyTTSChars,
		},
	})
}

func (h *Handler) HandleCostStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.cost.Status(r.Context())
	if err != nil {
		h.logger.Error("failed to load cost status", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load cost status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// AdminOnly hides a route unless the request carries token. With no token
// configured the route does not exist.
func AdminOnly(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				http.NotFound(w, r)
				return
			}
			got := r.Header.Get(AdminTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
