package proxy

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/moltbot/moltproxy/internal/metrics"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // auth happened before the proxy; origin is not the gate
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// bridgeWebSocket upgrades the client connection and pipes frames both
// ways between it and the gateway's WebSocket endpoint.
func (p *GatewayProxy) bridgeWebSocket(c echo.Context) error {
	backendURL := *p.target
	backendURL.Scheme = "ws"
	backendURL.Path = c.Request().URL.Path
	backendURL.RawQuery = c.Request().URL.RawQuery

	// Carry subprotocols through; everything hop-by-hop stays behind.
	header := http.Header{}
	if proto := c.Request().Header.Get("Sec-WebSocket-Protocol"); proto != "" {
		header.Set("Sec-WebSocket-Protocol", proto)
	}

	backend, resp, err := websocket.DefaultDialer.DialContext(
		c.Request().Context(), backendURL.String(), header)
	if err != nil {
		metrics.ProxiedRequests.WithLabelValues("upstream_error").Inc()
		status := http.StatusBadGateway
		if resp != nil {
			status = resp.StatusCode
		}
		return c.JSON(status, map[string]string{
			"error": "gateway websocket unavailable",
		})
	}
	defer backend.Close()

	var respHeader http.Header
	if sub := backend.Subprotocol(); sub != "" {
		respHeader = http.Header{"Sec-WebSocket-Protocol": []string{sub}}
	}

	client, err := upgrader.Upgrade(c.Response(), c.Request(), respHeader)
	if err != nil {
		return err
	}
	defer client.Close()

	metrics.WebSocketSessionsActive.Inc()
	defer metrics.WebSocketSessionsActive.Dec()
	metrics.ProxiedRequests.WithLabelValues("ok").Inc()

	errCh := make(chan error, 2)
	go pump(client, backend, errCh)
	go pump(backend, client, errCh)

	// First side to fail tears down both; the second pump exits on the
	// closed connection.
	err = <-errCh
	if err != nil && !websocket.IsCloseError(err,
		websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
		!strings.Contains(err.Error(), "use of closed network connection") {
		return err
	}
	return nil
}

func pump(dst, src *websocket.Conn, errCh chan<- error) {
	for {
		msgType, msg, err := src.ReadMessage()
		if err != nil {
			dst.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			errCh <- err
			return
		}
		if err := dst.WriteMessage(msgType, msg); err != nil {
			errCh <- err
			return
		}
	}
}
