package tools

import (
	"net/url"
	"strings"
	"time"
)

// ClockLayout is the hour:minute:second stamp shown in front of log lines.
const ClockLayout = "15:04:05"

// ChannelURL joins the chat namespace onto the endpoint, dropping any
// query or fragment the endpoint carried.
func ChannelURL(endpoint *url.URL, namespace string) *url.URL {
	u := *endpoint
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = "/" + strings.Trim(namespace, "/")
	u.RawPath = ""
	return &u
}

// EngineURL builds the Engine.IO endpoint for the given transport.
// Websocket URLs get a ws/wss scheme.
func EngineURL(base *url.URL, path, transport, sid string) *url.URL {
	u := &url.URL{
		Scheme: base.Scheme,
		Host:   base.Host,
		Path:   path,
	}
	if transport == "websocket" {
		switch base.Scheme {
		case "https", "wss":
			u.Scheme = "wss"
		default:
			u.Scheme = "ws"
		}
	}
	q := url.Values{}
	q.Set("EIO", "4")
	q.Set("transport", transport)
	if sid != "" {
		q.Set("sid", sid)
	}
	u.RawQuery = q.Encode()
	return u
}

func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func ClockString(t time.Time) string {
	return t.Local().Format(ClockLayout)
}
