package chat

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bt-bridge/socketio-chat/shared"
	"github.com/valyala/fasthttp"
)

// Login submits the server's name/room form and returns the cookies it
// sets. The form answers a successful login with a redirect to the chat
// page; anything else means the form was rejected.
func Login(ctx context.Context, endpoint *url.URL, name, room string, timeout time.Duration) ([]*http.Cookie, error) {
	if endpoint == nil {
		return nil, shared.ErrNoEndpoint
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	index := &url.URL{Scheme: endpoint.Scheme, Host: endpoint.Host, Path: "/"}
	req.SetRequestURI(index.String())
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	req.SetBodyString(url.Values{"name": {name}, "room": {room}}.Encode())

	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if err := fasthttp.DoTimeout(req, resp, timeout); err != nil {
		return nil, fmt.Errorf("performing login request: %w", err)
	}
	switch resp.StatusCode() {
	case fasthttp.StatusFound, fasthttp.StatusSeeOther:
	default:
		return nil, fmt.Errorf("%w: status code %d", shared.ErrLoginRejected, resp.StatusCode())
	}

	var cookies []*http.Cookie
	resp.Header.VisitAllCookie(func(key, value []byte) {
		c := fasthttp.AcquireCookie()
		defer fasthttp.ReleaseCookie(c)
		if err := c.ParseBytes(value); err != nil {
			return
		}
		cookies = append(cookies, &http.Cookie{
			Name:  string(c.Key()),
			Value: string(c.Value()),
		})
	})
	return cookies, nil
}

// Auth is sent with the namespace CONNECT packet.
type Auth struct {
	Name string `json:"name"`
	Room string `json:"room"`
}

// NewClientConfig derives the transport settings for cfg. When cfg.Login
// is set the server form is submitted first and its cookies ride along
// on the handshake.
func NewClientConfig(ctx context.Context, cfg *shared.Config) (*ClientConfig, error) {
	if cfg == nil {
		return nil, shared.ErrNoConfig
	}
	cc := &ClientConfig{
		EnginePath:       cfg.EnginePath,
		HandshakeTimeout: cfg.HandshakeTimeout,
		Polling:          cfg.Polling,
		Auth:             Auth{Name: cfg.Name, Room: cfg.Room},
	}
	if !cfg.Login {
		return cc, nil
	}
	endpoint, err := cfg.EndpointURL()
	if err != nil {
		return nil, err
	}
	cc.Cookies, err = Login(ctx, endpoint, cfg.Name, cfg.Room, cfg.HandshakeTimeout)
	if err != nil {
		return nil, err
	}
	return cc, nil
}
