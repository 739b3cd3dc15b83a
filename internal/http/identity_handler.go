package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"moviebox/internal/identity"
	"moviebox/internal/service"
)

// IdentityHandler expone el proveedor de credenciales sobre HTTP.
type IdentityHandler struct {
	logger     *zap.Logger
	identities *service.IdentityService
}

// NewIdentityHandler crea una instancia de IdentityHandler con dependencias necesarias.
func NewIdentityHandler(logger *zap.Logger, identities *service.IdentityService) *IdentityHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityHandler{
		logger:     logger,
		identities: identities,
	}
}

// CreateAccount maneja POST /v1/account.
func (h *IdentityHandler) CreateAccount(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
		Name     string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid create account request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	ident, err := h.identities.CreateAccount(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicateUser):
			c.JSON(http.StatusConflict, gin.H{"error": "account already exists"})
		case errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": inputMessage(err)})
		default:
			h.logger.Error("create account failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create account"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"identity": ident})
}

// CreateSession maneja POST /v1/account/sessions.
func (h *IdentityHandler) CreateSession(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid create session request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	session, err := h.identities.CreateSession(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		default:
			h.logger.Error("create session failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create session"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session": session})
}

// GetAccount maneja GET /v1/account.
func (h *IdentityHandler) GetAccount(c *gin.Context) {
	ident, ok := GetAuthIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"identity": ident})
}

// UpdatePassword maneja PATCH /v1/account/password.
func (h *IdentityHandler) UpdatePassword(c *gin.Context) {
	ident, ok := GetAuthIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return
	}
	var req struct {
		Password    string `json:"password" binding:"required"`
		OldPassword string `json:"old_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid update password request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	err := h.identities.UpdatePassword(c.Request.Context(), ident.ID, req.Password, req.OldPassword)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrSessionInvalid):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		case errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": inputMessage(err)})
		default:
			h.logger.Error("update password failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update password"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"identity": ident})
}

// DeleteSession maneja DELETE /v1/account/sessions/:id. Solo la sesion del bearer puede borrarse.
func (h *IdentityHandler) DeleteSession(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if id != identity.CurrentSession && id != claims.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	if err := h.identities.DeleteSession(c.Request.Context(), c.GetString(authSecretKey)); err != nil {
		h.logger.Error("delete session failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete session"})
		return
	}

	c.Status(http.StatusNoContent)
}

func inputMessage(err error) string {
	return strings.TrimPrefix(err.Error(), service.ErrInvalidInput.Error()+": ")
}
