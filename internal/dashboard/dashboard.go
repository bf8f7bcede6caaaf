// Package dashboard serves the admin pages and the session's JSON views.
package dashboard

import (
	"net/http"
	"strconv"

	"github.com/beep-industries/admin/internal/auth"
	"github.com/beep-industries/admin/internal/auth/gate"
	"github.com/beep-industries/admin/internal/directory"
	"github.com/beep-industries/admin/internal/logger"
	"github.com/beep-industries/admin/internal/middleware"

	"github.com/gin-gonic/gin"
)

type page struct {
	Heading string
	Body    string
}

var pages = map[string]page{
	"/": {
		Heading: "Dashboard",
		Body:    "Start building your admin features from here.",
	},
	"/moderation": {
		Heading: "Moderation",
		Body:    "Moderation tools will appear here.",
	},
}

type Handler struct {
	auth      *middleware.AuthMiddleware
	directory directory.Directory
}

// NewHandler creates the dashboard handler. dir may be nil, which
// disables the administrator listing.
func NewHandler(auth *middleware.AuthMiddleware, dir directory.Directory) *Handler {
	return &Handler{auth: auth, directory: dir}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	web := r.Group("/")
	web.Use(middleware.GinRequirePage(h.auth))
	for path := range pages {
		web.GET(path, h.page)
	}

	api := r.Group("/api")
	api.Use(middleware.GinRequireAdmin(h.auth))
	api.GET("/me", h.me)
	api.GET("/users", h.users)
}

func (h *Handler) page(c *gin.Context) {
	state, _ := middleware.AuthStateFromContext(c.Request.Context())
	p := pages[c.FullPath()]

	c.Header("Cache-Control", "no-store")
	c.HTML(http.StatusOK, "page", gin.H{
		"Title":    PageTitle(c.Request.URL.Path),
		"Heading":  p.Heading,
		"Body":     p.Body,
		"User":     state.User,
		"Initials": initials(state.User),
	})
}

type meResponse struct {
	gate.AuthState
	Initials string `json:"initials"`
}

func (h *Handler) me(c *gin.Context) {
	state, _ := middleware.AuthStateFromContext(c.Request.Context())
	c.JSON(http.StatusOK, meResponse{
		AuthState: state,
		Initials:  initials(state.User),
	})
}

func (h *Handler) users(c *gin.Context) {
	if h.directory == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "directory disabled"})
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.directory.List(c.Request.Context(), limit)
	if err != nil {
		logger.Error("failed to list administrators", map[string]any{"error": err})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": entries})
}

func initials(u *auth.User) string {
	if u == nil {
		return auth.Initials("", "", "")
	}
	return auth.Initials(u.Username, u.Email, "")
}
