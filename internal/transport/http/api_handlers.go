package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chatpe/chatpe-server/internal/auth"
	"github.com/chatpe/chatpe-server/internal/clock"
	"github.com/chatpe/chatpe-server/internal/core"
)

// APIHandlers provides HTTP handlers for the authentication boundary and health.
type APIHandlers struct {
	authService *auth.Service
	hub         *core.Hub
	log         *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(authService *auth.Service, hub *core.Hub, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		authService: authService,
		hub:         hub,
		log:         logger,
	}
}

// ChallengeRequest represents the challenge request body.
// RollNumber is the field name older clients send instead of identity.
type ChallengeRequest struct {
	Identity   string `json:"identity"`
	RollNumber string `json:"rollNumber"`
	DeviceID   string `json:"deviceId" binding:"required"`
	AccessKey  string `json:"accessKey"`
}

// ChallengeResponse carries the one-time code. ExpiresAt is unix ms.
type ChallengeResponse struct {
	Code      string `json:"code"`
	ExpiresAt int64  `json:"expiresAt"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Identity   string `json:"identity"`
	RollNumber string `json:"rollNumber"`
	Code       string `json:"code" binding:"required"`
	DeviceID   string `json:"deviceId" binding:"required"`
}

// ResumeRequest represents the resume request body.
type ResumeRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	DeviceID  string `json:"deviceId" binding:"required"`
}

// LogoutRequest represents the logout request body.
type LogoutRequest struct {
	SessionID string `json:"sessionId"`
}

// SessionResponse is returned by login and resume.
type SessionResponse struct {
	SessionID    string `json:"sessionId"`
	Token        string `json:"token"`
	Pseudonym    string `json:"pseudonym"`
	RoomKey      string `json:"roomKey"`
	RoomName     string `json:"roomName"`
	IsPrivileged bool   `json:"isPrivileged"`
}

// HealthResponse reports liveness and hub occupancy.
type HealthResponse struct {
	OK          bool `json:"ok"`
	Rooms       int  `json:"rooms"`
	Sessions    int  `json:"sessions"`
	Connections int  `json:"connections"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func pickIdentity(identity, rollNumber string) string {
	if identity != "" {
		return identity
	}
	return rollNumber
}

// RequestChallenge issues a one-time login code.
// POST /api/auth/challenge
func (h *APIHandlers) RequestChallenge(c *gin.Context) {
	var req ChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid challenge request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeBadRequest})
		return
	}

	challenge, err := h.authService.RequestChallenge(pickIdentity(req.Identity, req.RollNumber), req.DeviceID, req.AccessKey)
	if err != nil {
		h.writeError(c, err, "challenge request rejected")
		return
	}

	c.JSON(http.StatusOK, ChallengeResponse{Code: challenge.Code, ExpiresAt: clock.Millis(challenge.ExpiresAt)})
}

// Login redeems a code for a session and connection token.
// POST /api/login
func (h *APIHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeBadRequest})
		return
	}

	grant, err := h.authService.Login(c.Request.Context(), pickIdentity(req.Identity, req.RollNumber), req.Code, req.DeviceID)
	if err != nil {
		h.writeError(c, err, "login rejected")
		return
	}

	c.JSON(http.StatusOK, sessionResponse(grant))
}

// Resume reissues a token for a live session.
// POST /api/resume
func (h *APIHandlers) Resume(c *gin.Context) {
	var req ResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid resume request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeBadRequest})
		return
	}

	grant, err := h.authService.Resume(req.SessionID, req.DeviceID)
	if err != nil {
		h.writeError(c, err, "resume rejected")
		return
	}

	c.JSON(http.StatusOK, sessionResponse(grant))
}

// Logout ends a session. It always acknowledges.
// POST /api/logout
func (h *APIHandlers) Logout(c *gin.Context) {
	var req LogoutRequest
	_ = c.ShouldBindJSON(&req)
	if req.SessionID != "" {
		h.authService.Logout(req.SessionID)
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Health reports hub occupancy.
// GET /api/health
func (h *APIHandlers) Health(c *gin.Context) {
	stats := h.hub.Stats()
	c.JSON(http.StatusOK, HealthResponse{
		OK:          true,
		Rooms:       stats.Rooms,
		Sessions:    stats.Sessions,
		Connections: stats.Connections,
	})
}

func sessionResponse(grant *auth.Grant) SessionResponse {
	s := grant.Session
	return SessionResponse{
		SessionID:    s.ID,
		Token:        grant.Token,
		Pseudonym:    s.Pseudonym,
		RoomKey:      s.RoomKey,
		RoomName:     s.RoomName,
		IsPrivileged: s.Privileged,
	}
}

func (h *APIHandlers) writeError(c *gin.Context, err error, msg string) {
	status, text := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg(msg)
	} else {
		h.log.Debug().Err(err).Int("status", status).Msg(msg)
	}
	c.JSON(status, ErrorResponse{Error: text, Code: core.ErrorCode(err)})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, core.ErrExpired):
		return http.StatusUnauthorized, "code expired"
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, core.ErrDeviceConflict):
		return http.StatusConflict, "identity is in use on another device"
	case errors.Is(err, core.ErrRateLimited):
		return http.StatusTooManyRequests, "try again later"
	case errors.Is(err, core.ErrNotFound):
		return http.StatusForbidden, "no room for this identity"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
