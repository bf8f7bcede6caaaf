package handler

import (
	"net/http"

	"github.com/beep-industries/admin/internal/auth/gate"
	"github.com/beep-industries/admin/internal/logger"
	"github.com/beep-industries/admin/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type Handler struct {
	auth *middleware.AuthMiddleware
}

func NewHandler(auth *middleware.AuthMiddleware) *Handler {
	return &Handler{auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/auth/login", h.login)
	r.POST("/auth/logout", h.logout)
	r.POST("/auth/retry", h.retry)

	protected := r.Group("/auth")
	protected.Use(middleware.GinRequireAdmin(h.auth))
	protected.POST("/silent", h.silent)
	protected.GET("/token-refresh", h.tokenRefresh)

	for _, route := range r.Routes() {
		logger.Debug("route registered", map[string]any{
			"method": route.Method,
			"path":   route.Path,
		})
	}
}

func (h *Handler) login(c *gin.Context) {
	entry, err := h.auth.Acquire(c.Writer, c.Request, true)
	if err != nil {
		logger.Error("failed to resolve session", map[string]any{"error": err})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve session"})
		return
	}

	state := entry.Gate.State()
	if state.Screen == gate.ScreenAccessDenied {
		// Signed in without the admin role; only sign-out applies.
		c.Redirect(http.StatusSeeOther, "/")
		return
	}

	if err := state.Login(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start sign-in"})
		return
	}
	h.follow(c, entry.Client.TakeNavigation)
}

func (h *Handler) logout(c *gin.Context) {
	entry, err := h.auth.Acquire(c.Writer, c.Request, false)
	if err != nil {
		// Nothing to sign out of.
		c.Redirect(http.StatusSeeOther, "/")
		return
	}

	if err := entry.Gate.State().Logout(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign out"})
		return
	}

	logger.Info("sign-out started", map[string]any{
		"session_id": entry.Client.SessionID(),
		"ip":         c.ClientIP(),
	})
	h.follow(c, entry.Client.TakeNavigation)
}

func (h *Handler) retry(c *gin.Context) {
	entry, err := h.auth.Acquire(c.Writer, c.Request, true)
	if err != nil {
		logger.Error("failed to resolve session", map[string]any{"error": err})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve session"})
		return
	}

	if err := entry.Gate.Retry(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start sign-in"})
		return
	}
	h.follow(c, entry.Client.TakeNavigation)
}

// follow redirects the browser to the queued navigation, or home.
func (h *Handler) follow(c *gin.Context, take func() (string, bool)) {
	to, ok := take()
	if !ok {
		to = "/"
	}
	c.Redirect(http.StatusSeeOther, to)
}

func (h *Handler) silent(c *gin.Context) {
	state, _ := middleware.AuthStateFromContext(c.Request.Context())

	token, err := state.SigninSilent(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "silent sign-in failed"})
		return
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": token})
}
