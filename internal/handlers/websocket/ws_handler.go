// internal/handlers/websocket/ws_handler.go
package websocket

import (
	"net/http"

	"meterd-service/internal/middleware"
	"meterd-service/internal/notify"
	"meterd-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type WebSocketHandler struct {
	hub    *notify.Hub
	logger *zap.Logger
}

func NewWebSocketHandler(hub *notify.Hub, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		logger: logger,
	}
}

// HandleConnection upgrades an authenticated request and attaches it
// to the notification hub. The client receives decision events
// (denials, limit reached, downgrade scheduling) as they happen.
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.hub.Attach(conn, p.ID)
}
