// Package proxy forwards already-authenticated HTTP and WebSocket traffic
// to the ready gateway process. Every request first resolves readiness
// through the lifecycle manager, so the first request after a cold start
// or crash transparently boots the gateway.
package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/moltbot/moltproxy/internal/metrics"
	"github.com/moltbot/moltproxy/internal/runtime"
)

// Ensurer resolves a ready gateway process. Implemented by
// gateway.Manager; faked in tests.
type Ensurer interface {
	Ensure(ctx context.Context) (runtime.ProcessHandle, error)
}

// GatewayProxy reverse-proxies traffic to the gateway's well-known port.
type GatewayProxy struct {
	manager Ensurer
	target  *url.URL
}

// New creates a proxy forwarding to addr (host:port of the gateway).
func New(manager Ensurer, addr string) *GatewayProxy {
	return &GatewayProxy{
		manager: manager,
		target:  &url.URL{Scheme: "http", Host: addr},
	}
}

// Handler returns the echo handler that forwards a request to the gateway.
func (p *GatewayProxy) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		if _, err := p.manager.Ensure(ctx); err != nil {
			metrics.ProxiedRequests.WithLabelValues("ensure_failed").Inc()
			log.Printf("proxy: gateway not available: %v", err)
			return c.JSON(http.StatusBadGateway, map[string]string{
				"error": fmt.Sprintf("gateway not available: %v", err),
			})
		}

		if isWebSocketRequest(c.Request()) {
			return p.bridgeWebSocket(c)
		}
		return p.doProxy(c)
	}
}

// doProxy forwards a plain HTTP request. A gateway that just came up may
// need a moment to stabilize its listening socket, so connection errors
// before response headers arrive are retried with short backoff. Once
// headers are in, the body streams straight through with per-chunk
// flushes, so chunked and SSE responses reach the client as they are
// produced.
func (p *GatewayProxy) doProxy(c echo.Context) error {
	// Buffer the request body so we can replay it across retries.
	var bodyBytes []byte
	if c.Request().Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(c.Request().Body)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "failed to read request body",
			})
		}
		c.Request().Body.Close()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: 2 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: 60 * time.Second,
	}
	defer transport.CloseIdleConnections()

	const maxRetries = 6
	delay := 50 * time.Millisecond

	var resp *http.Response
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
			delay *= 2
			if delay > 500*time.Millisecond {
				delay = 500 * time.Millisecond
			}
		}

		req := c.Request().Clone(c.Request().Context())
		req.URL.Scheme = p.target.Scheme
		req.URL.Host = p.target.Host
		req.RequestURI = ""
		removeHopHeaders(req.Header)
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			req.ContentLength = int64(len(bodyBytes))
		} else {
			req.Body = http.NoBody
		}

		var err error
		resp, err = transport.RoundTrip(req)
		if err != nil {
			if isRetryable(err) && attempt < maxRetries {
				continue
			}
			metrics.ProxiedRequests.WithLabelValues("upstream_error").Inc()
			log.Printf("proxy: error forwarding to gateway after %d attempts: %v", attempt+1, err)
			return c.JSON(http.StatusBadGateway, map[string]string{
				"error": "gateway upstream unavailable",
			})
		}
		break
	}
	if resp == nil {
		metrics.ProxiedRequests.WithLabelValues("upstream_error").Inc()
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "gateway upstream unavailable after retries",
		})
	}
	defer resp.Body.Close()

	removeHopHeaders(resp.Header)
	for k, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(k, v)
		}
	}
	c.Response().WriteHeader(resp.StatusCode)
	metrics.ProxiedRequests.WithLabelValues("ok").Inc()

	if err := streamBody(c.Response(), resp.Body); err != nil {
		// Headers are already out; nothing left to do but note it.
		log.Printf("proxy: response stream interrupted: %v", err)
	}
	return nil
}

// streamBody copies the upstream body to the client, flushing after each
// read so long-lived streams are not held back by buffering.
func streamBody(w *echo.Response, body io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			w.Flush()
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// Hop-by-hop headers do not travel past a single connection.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func removeHopHeaders(h http.Header) {
	for _, k := range hopHeaders {
		h.Del(k)
	}
}

// isRetryable returns true for transient connection errors that may
// resolve once the gateway's listener has stabilized.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "closed network connection") ||
		strings.Contains(s, "EOF") ||
		strings.Contains(s, "broken pipe")
}

func isWebSocketRequest(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}
