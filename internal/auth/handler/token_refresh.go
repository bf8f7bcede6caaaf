package handler

import (
	"github.com/beep-industries/admin/internal/logger"
	"github.com/beep-industries/admin/internal/middleware"

	"github.com/gin-gonic/gin"
)

type tokenMessage struct {
	AccessToken string `json:"access_token"`
}

// tokenRefresh pushes every refreshed access token of the session over a
// websocket until the browser disconnects.
func (h *Handler) tokenRefresh(c *gin.Context) {
	state, _ := middleware.AuthStateFromContext(c.Request.Context())

	// Only the latest token matters; a slow reader never blocks the
	// identity client.
	updates := make(chan string, 1)
	unsubscribe := state.SubscribeToTokenRefresh(func(token string) {
		for {
			select {
			case updates <- token:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	// Subscribed before the handshake completes so no refresh is missed.
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("failed to upgrade token refresh connection", map[string]any{"error": err})
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			logger.Debug("token refresh connection closed", nil)
			return
		case token := <-updates:
			if err := conn.WriteJSON(tokenMessage{AccessToken: token}); err != nil {
				return
			}
		}
	}
}
