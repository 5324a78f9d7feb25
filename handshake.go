package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bt-bridge/socketio-chat/tools"
	"github.com/gorilla/websocket"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// cookieHeader renders cookies for the Cookie request header.
func cookieHeader(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// pollingHandshake opens an Engine.IO session over long-polling and
// returns the server's open packet. The session is upgraded to a
// websocket afterwards by probeUpgrade.
func (c *Client) pollingHandshake(ctx context.Context) (*openPacket, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(tools.EngineURL(c.base, c.cfg.EnginePath, "polling", "").String())
	req.Header.SetMethod(fasthttp.MethodGet)
	if len(c.cfg.Cookies) > 0 {
		req.Header.Set("Cookie", cookieHeader(c.cfg.Cookies))
	}

	timeout := c.cfg.HandshakeTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := c.respectCtx(); err != nil {
		return nil, err
	}
	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		return nil, fmt.Errorf("performing polling handshake: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode(), string(resp.Body()))
	}
	for _, frame := range splitPayload(resp.Body()) {
		typ, data, err := decodeEngine(frame)
		if err != nil {
			return nil, err
		}
		if typ == enginePacketOpen {
			return decodeOpen(data)
		}
	}
	return nil, errors.New("polling handshake without open packet")
}

// probeUpgrade runs the Engine.IO upgrade probe on a websocket that was
// dialed with an existing sid.
func (c *Client) probeUpgrade(conn *websocket.Conn, timeout time.Duration) error {
	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	if err := conn.WriteMessage(websocket.TextMessage, encodeEngine(enginePacketPing, []byte("probe"))); err != nil {
		return fmt.Errorf("sending probe: %w", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("reading probe reply: %w", err)
	}
	typ, data, err := decodeEngine(frame)
	if err != nil {
		return err
	}
	if typ != enginePacketPong || string(data) != "probe" {
		return fmt.Errorf("unexpected probe reply %q", frame)
	}
	if err := conn.WriteMessage(websocket.TextMessage, encodeEngine(enginePacketUpgrade, nil)); err != nil {
		return fmt.Errorf("sending upgrade: %w", err)
	}
	c.logger.Trace("transport upgraded to websocket")
	return nil
}

// dial establishes the websocket and returns it together with the
// Engine.IO open packet, using the polling handshake first when
// configured.
func (c *Client) dial() (*websocket.Conn, *openPacket, error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	var (
		open *openPacket
		sid  string
		err  error
	)
	if c.cfg.Polling {
		open, err = c.pollingHandshake(ctx)
		if err != nil {
			return nil, nil, err
		}
		sid = open.SID
		c.logger.Debug("polling handshake complete", zap.String("sid", sid))
	}

	header := http.Header{}
	if len(c.cfg.Cookies) > 0 {
		header.Set("Cookie", cookieHeader(c.cfg.Cookies))
	}
	wsURL := tools.EngineURL(c.base, c.cfg.EnginePath, "websocket", sid)
	conn, resp, err := c.dialer.DialContext(ctx, wsURL.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("dialing %s: %w", wsURL.Redacted(), err)
	}
	// unblock the handshake reads below when the client is closed
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if open != nil {
		if err := c.probeUpgrade(conn, c.cfg.HandshakeTimeout); err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return conn, open, nil
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("reading open packet: %w", err)
	}
	typ, data, err := decodeEngine(frame)
	if err == nil && typ != enginePacketOpen {
		err = fmt.Errorf("expected open packet, got %q", frame)
	}
	if err == nil {
		open, err = decodeOpen(data)
	}
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, open, nil
}

