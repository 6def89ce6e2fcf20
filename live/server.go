package live

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pocketbase/pocketbase/core"
)

const pingInterval = 30 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:    4096,
	WriteBufferSize:   4096,
	EnableCompression: true,
	CheckOrigin:       func(r *http.Request) bool { return true },
}

// RegisterServer registers the /live websocket route. When authToken is
// non-empty, clients must present it as a bearer token.
func RegisterServer(app core.App, hub *Hub, authToken string) {
	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		se.Router.Any("/live", func(c *core.RequestEvent) error {
			if authToken != "" {
				auth := c.Request.Header.Get("Authorization")
				if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != authToken {
					return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				}
			}

			ws, err := upgrader.Upgrade(c.Response, c.Request, nil)
			if err != nil {
				return c.InternalServerError("upgrade", err)
			}
			slog.Debug("live.server.connection", "remote", c.Request.RemoteAddr)

			conn := &Conn{ws: ws}
			hub.Register(conn)
			go serveConn(conn, hub)
			return nil
		})
		return se.Next()
	})
}

func serveConn(c *Conn, hub *Hub) {
	defer func() {
		hub.Unregister(c)
		_ = c.ws.Close()
	}()

	stop := make(chan struct{})
	defer close(stop)
	go pingLoop(c, stop)

	// Clients only listen; the read loop exists to notice disconnects.
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			slog.Debug("live.server.disconnect", "err", err)
			return
		}
	}
}

func pingLoop(c *Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.SendJSON(map[string]any{"type": "ping", "ts": time.Now().UnixMilli()}); err != nil {
				_ = c.ws.Close()
				return
			}
		}
	}
}
