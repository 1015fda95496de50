package handlers

import (
	"net"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/privatecinema/internal/api/middleware"
	"github.com/amaumene/privatecinema/internal/controllers"
)

// ClaimHandler serves the two halves of the link handshake
type ClaimHandler struct {
	claims *controllers.ClaimController
	logger *logrus.Logger
}

// NewClaimHandler creates a new claim handler
func NewClaimHandler(claims *controllers.ClaimController, logger *logrus.Logger) *ClaimHandler {
	return &ClaimHandler{
		claims: claims,
		logger: logger,
	}
}

// IssueToken handles POST /claimToken for a signed-in user
func (h *ClaimHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	uid, ok := middleware.UIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, controllers.ErrUnauthenticated)
		return
	}

	token, err := h.claims.IssueToken(r.Context(), uid)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, token)
}

// AgentClaim handles POST /agentClaim; the agent authenticates with the
// claim credentials themselves
func (h *ClaimHandler) AgentClaim(w http.ResponseWriter, r *http.Request) {
	var req controllers.ClaimRequest
	if err := decodeBody(w, r, jsonBodyLimit, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	req.RequesterIP = RequesterIP(r)

	result, err := h.claims.Claim(r.Context(), &req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// RequesterIP returns the first X-Forwarded-For entry, else the host part
// of the connection's remote address
func RequesterIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
