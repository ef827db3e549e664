package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/n0ot/relayhub/pkg/codec"
	"github.com/n0ot/relayhub/pkg/model"
	"github.com/n0ot/relayhub/pkg/server/methods"
)

func newTestServer(t *testing.T, srv *Server) *httptest.Server {
	t.Helper()
	log, _ := test.NewNullLogger()
	srv.Log = log
	srv.statsPenalty = time.Millisecond
	if err := methods.Register(srv.Router(), srv.Dispatcher()); err != nil {
		t.Fatalf("Register methods: %s", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

// dial connects to ts, and returns the connection along with the ID the server greeted it with.
func dial(t *testing.T, ts *httptest.Server) (*websocket.Conn, string) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatalf("Dial: %s", err)
	}
	t.Cleanup(func() { conn.Close() })

	env := readEnvelope(t, conn)
	if env.Type != model.ConnectionEvent || env.Data == "" {
		t.Fatalf("First frame = %+v, want a connection event", env)
	}
	return conn, env.Data
}

func readEnvelope(t *testing.T, conn *websocket.Conn) model.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Read: %s", err)
	}
	env, err := codec.JSON{}.DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("Decode envelope %q: %s", data, err)
	}
	return env
}

func readInvocation(t *testing.T, conn *websocket.Conn) model.Invocation {
	t.Helper()
	env := readEnvelope(t, conn)
	if env.Type != model.ClientMethodInvocation {
		t.Fatalf("Frame = %+v, want an invocation", env)
	}
	inv, err := codec.JSON{}.DecodeInvocation([]byte(env.Data))
	if err != nil {
		t.Fatalf("Decode invocation %q: %s", env.Data, err)
	}
	return inv
}

func call(t *testing.T, conn *websocket.Conn, method string, args ...interface{}) {
	t.Helper()
	data, err := codec.JSON{}.EncodeInvocation(model.NewInvocation(method, args...))
	if err != nil {
		t.Fatalf("Encode invocation: %s", err)
	}
	frame, err := codec.JSON{}.EncodeEnvelope(model.Envelope{Type: model.ClientMethodInvocation, Data: string(data)})
	if err != nil {
		t.Fatalf("Encode envelope: %s", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("Write: %s", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestConnectAndPing(t *testing.T) {
	srv := &Server{}
	ts := newTestServer(t, srv)
	conn, id := dial(t, ts)

	if _, ok := srv.registry.Get(id); !ok {
		t.Errorf("Connection %s not registered", id)
	}

	call(t, conn, "Ping")
	inv := readInvocation(t, conn)
	if inv.MethodName != methods.ClientPong || len(inv.Arguments) != 0 {
		t.Errorf("Reply = %+v, want Pong()", inv)
	}
}

func TestUnknownMethodRepliesWithText(t *testing.T) {
	ts := newTestServer(t, &Server{})
	conn, _ := dial(t, ts)

	call(t, conn, "Foo")
	env := readEnvelope(t, conn)
	want := model.NewText(`Method "Foo" could not be found`)
	if env != want {
		t.Errorf("Reply = %+v, want %+v", env, want)
	}
}

func TestGroupMessaging(t *testing.T) {
	ts := newTestServer(t, &Server{})
	a, idA := dial(t, ts)
	b, idB := dial(t, ts)

	call(t, a, "JoinGroup", "room")
	call(t, a, "Ping")
	readInvocation(t, a)
	call(t, b, "JoinGroup", "room")

	joined := readInvocation(t, a)
	if want := model.NewInvocation(methods.ClientJoined, "room", idB); !reflect.DeepEqual(joined, want) {
		t.Fatalf("A got %+v, want %+v", joined, want)
	}

	call(t, a, "SendToGroup", "room", "hi")
	got := readInvocation(t, b)
	if want := model.NewInvocation(methods.ClientReceiveMessage, idA, "hi"); !reflect.DeepEqual(got, want) {
		t.Errorf("B got %+v, want %+v", got, want)
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	srv := &Server{}
	ts := newTestServer(t, srv)
	conn, id := dial(t, ts)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	waitFor(t, "connection removal", func() bool {
		return !srv.registry.Exists(id)
	})
}

func TestShutdownClosesClients(t *testing.T) {
	srv := &Server{}
	ts := newTestServer(t, srv)
	conn, _ := dial(t, ts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %s", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("Read after shutdown = %v, want a normal close", err)
	}
	if n := srv.registry.Len(); n != 0 {
		t.Errorf("%d connections left after shutdown", n)
	}
}

func TestOrigins(t *testing.T) {
	ts := newTestServer(t, &Server{AllowedOrigins: []string{"https://good.example", "not a url"}})

	tests := []struct {
		origin string
		ok     bool
	}{
		{"https://good.example", true},
		{"HTTPS://GOOD.EXAMPLE", true},
		{"https://evil.example", false},
		{"", true},
	}
	for _, tt := range tests {
		header := http.Header{}
		if tt.origin != "" {
			header.Set("Origin", tt.origin)
		}
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
		if tt.ok {
			if err != nil {
				t.Errorf("Origin %q: dial failed: %s", tt.origin, err)
				continue
			}
			conn.Close()
			continue
		}
		if err == nil {
			conn.Close()
			t.Errorf("Origin %q: dial succeeded, want rejection", tt.origin)
			continue
		}
		if resp == nil || resp.StatusCode != http.StatusForbidden {
			t.Errorf("Origin %q: response = %v, want 403", tt.origin, resp)
		}
	}
}

func TestSameOriginByDefault(t *testing.T) {
	ts := newTestServer(t, &Server{})
	header := http.Header{}
	header.Set("Origin", "https://elsewhere.example")
	if conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), header); err == nil {
		conn.Close()
		t.Error("Cross-origin dial succeeded with no allowed origins")
	}

	header.Set("Origin", ts.URL)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
	if err != nil {
		t.Fatalf("Same-origin dial: %s", err)
	}
	conn.Close()
}

func getStats(t *testing.T, ts *httptest.Server, password string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/stats", nil)
	if err != nil {
		t.Fatalf("New request: %s", err)
	}
	if password != "" {
		req.Header.Set(StatsPasswordHeader, password)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Get stats: %s", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestStats(t *testing.T) {
	ts := newTestServer(t, &Server{StatsPassword: "secret"})
	a, _ := dial(t, ts)
	dial(t, ts)
	call(t, a, "JoinGroup", "room")
	call(t, a, "Ping")
	readInvocation(t, a) // JoinGroup is handled before Ping.

	if resp := getStats(t, ts, ""); resp.StatusCode != http.StatusForbidden {
		t.Errorf("No password: status = %d, want 403", resp.StatusCode)
	}
	if resp := getStats(t, ts, "guess"); resp.StatusCode != http.StatusForbidden {
		t.Errorf("Wrong password: status = %d, want 403", resp.StatusCode)
	}

	resp := getStats(t, ts, "secret")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Status = %d, want 200", resp.StatusCode)
	}
	var stats StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("Decode stats: %s", err)
	}
	if stats.Type != "stats" {
		t.Errorf("Type = %q, want stats", stats.Type)
	}
	if stats.Stats.NumConnections != 2 || stats.Stats.MaxConnections != 2 {
		t.Errorf("Connections = %d (max %d), want 2 (max 2)", stats.Stats.NumConnections, stats.Stats.MaxConnections)
	}
	if stats.Stats.NumGroups != 1 {
		t.Errorf("NumGroups = %d, want 1", stats.Stats.NumGroups)
	}
	if len(stats.Stats.Methods) == 0 {
		t.Error("No methods listed")
	}
}

func TestStatsDisabled(t *testing.T) {
	ts := newTestServer(t, &Server{})
	if resp := getStats(t, ts, "anything"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &Server{})
	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("Get: %s", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}

	resp2, err := http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("Get: %s", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", resp2.StatusCode)
	}
}

func TestReadTimeout(t *testing.T) {
	tests := []struct {
		between time.Duration
		pings   int
		want    time.Duration
	}{
		{0, 3, 0},
		{time.Second, 0, 0},
		{time.Second, 2, 3 * time.Second},
	}
	for _, tt := range tests {
		srv := &Server{TimeBetweenPings: tt.between, PingsUntilTimeout: tt.pings}
		if got := srv.readTimeout(); got != tt.want {
			t.Errorf("readTimeout(%s, %d) = %s, want %s", tt.between, tt.pings, got, tt.want)
		}
	}
}
