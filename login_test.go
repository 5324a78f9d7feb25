package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/bt-bridge/socketio-chat/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newLoginServer mimics the chat index form: valid submissions set the
// name and room cookies and redirect to the chat page.
func newLoginServer(t *testing.T) *url.URL {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		name, room := r.PostForm.Get("name"), r.PostForm.Get("room")
		if name == "" || room == "" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "name", Value: name, Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "room", Value: room, Path: "/"})
		http.Redirect(w, r, "/chat", http.StatusFound)
	}))
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL + "/chat")
	require.NoError(t, err)
	return u
}

func TestLogin(t *testing.T) {
	endpoint := newLoginServer(t)
	cookies, err := Login(context.Background(), endpoint, "alice", "lobby", time.Second)
	require.NoError(t, err)

	got := map[string]string{}
	for _, c := range cookies {
		got[c.Name] = c.Value
	}
	assert.Equal(t, map[string]string{"name": "alice", "room": "lobby"}, got)
}

func TestLoginRejected(t *testing.T) {
	endpoint := newLoginServer(t)
	_, err := Login(context.Background(), endpoint, "alice", "", time.Second)
	assert.ErrorIs(t, err, shared.ErrLoginRejected)
}

func TestLoginCancelled(t *testing.T) {
	endpoint := newLoginServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Login(ctx, endpoint, "alice", "lobby", time.Second)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = Login(context.Background(), nil, "alice", "lobby", time.Second)
	assert.ErrorIs(t, err, shared.ErrNoEndpoint)
}

func TestNewClientConfig(t *testing.T) {
	endpoint := newLoginServer(t)
	cfg := shared.DefaultConfig()
	cfg.Name, cfg.Room = "alice", "lobby"
	cfg.Endpoint = endpoint.String()
	cfg.Polling = true

	cc, err := NewClientConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, shared.DefaultEnginePath, cc.EnginePath)
	assert.True(t, cc.Polling)
	assert.Equal(t, Auth{Name: "alice", Room: "lobby"}, cc.Auth)
	assert.Empty(t, cc.Cookies)

	cfg.Login = true
	cc, err = NewClientConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Len(t, cc.Cookies, 2)

	cfg.Room = ""
	_, err = NewClientConfig(context.Background(), cfg)
	assert.ErrorIs(t, err, shared.ErrLoginRejected)

	_, err = NewClientConfig(context.Background(), nil)
	assert.ErrorIs(t, err, shared.ErrNoConfig)
}
