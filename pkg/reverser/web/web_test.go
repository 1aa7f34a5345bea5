package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsarna/reverser/pkg/reverser/dispatch"
	"github.com/tsarna/reverser/pkg/reverser/handler"
	"github.com/tsarna/reverser/pkg/reverser/reverse"
	"github.com/tsarna/reverser/pkg/reverser/server"
	"github.com/tsarna/reverser/pkg/reverser/wire"
	"go.uber.org/zap"
)

type fakeWebSocket struct {
	count int
	hits  int
}

func (f *fakeWebSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.hits++
	w.WriteHeader(http.StatusTeapot)
}

func (f *fakeWebSocket) ConnectionCount() int {
	return f.count
}

func get(t *testing.T, h http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerConfig_Validation(t *testing.T) {
	ws := &fakeWebSocket{}
	logger := zap.NewNop()

	t.Run("missing parameters", func(t *testing.T) {
		err := NewHandlerConfig().IsValid()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "WebSocket")
		assert.Contains(t, err.Error(), "Logger")
	})

	t.Run("bad websocket paths", func(t *testing.T) {
		for _, path := range []string{"ws", "/", "/health", "/{name}", "/a b"} {
			_, err := NewHandlerConfig().WithWebSocket(ws).WithLogger(logger).WithWSPath(path).Build()
			assert.Error(t, err, path)
		}
	})

	t.Run("empty path keeps default", func(t *testing.T) {
		config := NewHandlerConfig().WithWSPath("")
		assert.Equal(t, DefaultWSPath, config.wsPath)
	})

	t.Run("origins", func(t *testing.T) {
		for _, origins := range [][]string{
			{"*"},
			{"https://app.example"},
			{"app.example"},
			{"*.example.com"},
		} {
			_, err := NewHandlerConfig().WithWebSocket(ws).WithLogger(logger).WithAllowedOrigins(origins...).Build()
			assert.NoError(t, err, origins)
		}
	})
}

func TestHandler_Routes(t *testing.T) {
	ws := &fakeWebSocket{count: 3}
	engine, err := NewHandlerConfig().
		WithWebSocket(ws).
		WithLogger(zap.NewNop()).
		WithWSPath("/socket").
		WithTitle("Reverse <Things>").
		Build()
	require.NoError(t, err)

	t.Run("page", func(t *testing.T) {
		rec := get(t, engine, "/", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

		body := rec.Body.String()
		assert.Contains(t, body, `"/socket"`)
		assert.Contains(t, body, "reverse_input")
		assert.Contains(t, body, "frame.d.reversed")
		assert.Contains(t, body, `id="inputText"`)
		assert.Contains(t, body, "<title>Reverse &lt;Things&gt;</title>")
	})

	t.Run("health", func(t *testing.T) {
		rec := get(t, engine, "/health", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, float64(3), body["connections"])
	})

	t.Run("websocket path", func(t *testing.T) {
		rec := get(t, engine, "/socket", nil)
		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.Equal(t, 1, ws.hits)
	})

	t.Run("unknown path", func(t *testing.T) {
		rec := get(t, engine, "/nope", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("no cors headers without origins", func(t *testing.T) {
		rec := get(t, engine, "/health", http.Header{"Origin": []string{"https://other.example"}})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestHandler_CORS(t *testing.T) {
	t.Run("any origin", func(t *testing.T) {
		engine, err := NewHandlerConfig().
			WithWebSocket(&fakeWebSocket{}).
			WithLogger(zap.NewNop()).
			WithAllowedOrigins("*").
			Build()
		require.NoError(t, err)

		rec := get(t, engine, "/health", http.Header{"Origin": []string{"https://anywhere.example"}})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("listed origins", func(t *testing.T) {
		engine, err := NewHandlerConfig().
			WithWebSocket(&fakeWebSocket{}).
			WithLogger(zap.NewNop()).
			WithAllowedOrigins("https://app.example", "localhost:3000").
			Build()
		require.NoError(t, err)

		rec := get(t, engine, "/", http.Header{"Origin": []string{"https://app.example"}})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

		rec = get(t, engine, "/health", http.Header{"Origin": []string{"http://localhost:3000"}})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

		rec = get(t, engine, "/health", http.Header{"Origin": []string{"https://evil.example"}})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("preflight", func(t *testing.T) {
		engine, err := NewHandlerConfig().
			WithWebSocket(&fakeWebSocket{}).
			WithLogger(zap.NewNop()).
			WithAllowedOrigins("https://app.example").
			Build()
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodOptions, "/health", nil)
		req.Header.Set("Origin", "https://app.example")
		req.Header.Set("Access-Control-Request-Method", "GET")
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

// startHandler serves the full handler with a real listener behind it.
func startHandler(t *testing.T, configure func(*HandlerConfig)) *httptest.Server {
	t.Helper()

	router := dispatch.NewRouter()
	require.NoError(t, handler.Register(router, reverse.UnitCodePoint))

	listener, err := server.NewListenerConfig().
		WithRouter(router).
		WithLogger(zap.NewNop()).
		Build()
	require.NoError(t, err)

	config := NewHandlerConfig().WithWebSocket(listener).WithLogger(zap.NewNop())
	if configure != nil {
		configure(config)
	}
	h, err := config.Build()
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		listener.Shutdown(ctx)
		srv.Close()
	})
	return srv
}

func TestHandler_UpgradeOnCustomPath(t *testing.T) {
	srv := startHandler(t, func(c *HandlerConfig) { c.WithWSPath("/socket") })

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/socket", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	for _, tc := range []struct{ text, want string }{{"abc", "cba"}, {"", ""}} {
		frame := `{"t":"reverse_input","d":{"text":"` + tc.text + `"}}`
		require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(frame)))

		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		msg, err := wire.Decode(data)
		require.NoError(t, err)
		assert.JSONEq(t, `{"reversed":"`+tc.want+`"}`, string(msg.Data))
	}

	_, _, err = websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	assert.Error(t, err, "default path is not mounted when a custom one is set")
}

func TestHandler_EndToEnd(t *testing.T) {
	router := dispatch.NewRouter()
	require.NoError(t, handler.Register(router, reverse.UnitCodePoint))

	listener, err := server.NewListenerConfig().
		WithRouter(router).
		WithLogger(zap.NewNop()).
		Build()
	require.NoError(t, err)

	engine, err := NewHandlerConfig().
		WithWebSocket(listener).
		WithLogger(zap.NewNop()).
		WithAllowedOrigins("*").
		Build()
	require.NoError(t, err)

	srv := httptest.NewServer(engine)
	defer srv.Close()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		listener.Shutdown(ctx)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+DefaultWSPath, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"t":"reverse_input","d":{"text":"hello"}}`)))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	msg, err := wire.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, wire.EventResponse, msg.Event)
	assert.JSONEq(t, `{"reversed":"olleh"}`, string(msg.Data))

	rec := get(t, engine, "/health", nil)
	assert.Contains(t, rec.Body.String(), `"connections":1`)
}
