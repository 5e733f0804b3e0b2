package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/fractalmind-ai/translatebot/internal/config"
	"github.com/fractalmind-ai/translatebot/internal/pipeline"
	"github.com/fractalmind-ai/translatebot/pkg/protocol"
)

type fakePipeline struct{ status pipeline.Status }

func (f fakePipeline) Status() pipeline.Status { return f.status }

type fakeChannels struct{ infos []protocol.ChannelInfo }

func (f fakeChannels) List() []protocol.ChannelInfo { return f.infos }

type fakeHistory struct {
	count int
	err   error
}

func (f fakeHistory) Count(ctx context.Context) (int, error) { return f.count, f.err }

func newTestServer(t *testing.T, deps Deps) (*Server, *httptest.Server) {
	t.Helper()
	server, err := NewServer(&config.GatewayConfig{Bind: "127.0.0.1"}, deps, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	server.startTime = time.Now()
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return server, ts
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, msg protocol.Message) protocol.Message {
	t.Helper()
	if err := conn.WriteJSON(&msg); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	return readMessage(t, conn)
}

func readMessage(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp protocol.Message
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	return resp
}

func TestGatewayEchoAndStatus(t *testing.T) {
	server, ts := newTestServer(t, Deps{})
	conn := dial(t, ts, "")

	resp := roundTrip(t, conn, protocol.Message{
		Kind:   protocol.MessageKindEvent,
		Action: protocol.ActionEcho,
		Data:   map[string]string{"text": "hello"},
	})
	if resp.Kind != protocol.MessageKindEvent || resp.Action != protocol.ActionEcho {
		t.Fatalf("unexpected response: %#v", resp)
	}
	data, ok := resp.Data.(map[string]interface{})
	if !ok || data["text"] != "hello" {
		t.Fatalf("unexpected echo payload: %#v", resp.Data)
	}

	if err := waitForActiveClients(server, 1, time.Second); err != nil {
		t.Fatalf("active clients not tracked: %v", err)
	}

	statusResp, err := fetchStatus(ts.URL + "/status")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	if statusResp.Status != "ok" || statusResp.ActiveClients != 1 || statusResp.Uptime == "" {
		t.Fatalf("unexpected status: %#v", statusResp)
	}

	_ = conn.Close()
	if err := waitForActiveClients(server, 0, time.Second); err != nil {
		t.Fatalf("client cleanup failed: %v", err)
	}
}

type statusPayload struct {
	Status        string `json:"status"`
	ActiveClients int    `json:"active_clients"`
	Uptime        string `json:"uptime"`
	StartedAt     string `json:"started_at"`
	Channels      []struct {
		Type         string `json:"type"`
		Status       string `json:"status"`
		LastActivity string `json:"last_activity"`
		LastError    string `json:"last_error"`
	} `json:"channels"`
	Pipeline *struct {
		SourceLanguage string   `json:"source_language"`
		TargetLanguage string   `json:"target_language"`
		Confirmation   string   `json:"confirmation"`
		Sinks          []string `json:"sinks"`
		Pending        int      `json:"pending"`
	} `json:"pipeline"`
	Shares *int `json:"shares"`
}

func fetchStatus(url string) (*statusPayload, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var payload statusPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func waitForActiveClients(server *Server, want int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if server.activeClients() == want {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("active clients did not reach %d", want)
}

func TestStatusIncludesPipelineChannelsAndShares(t *testing.T) {
	lastActivity := time.Date(2024, 1, 3, 4, 5, 6, 0, time.UTC)
	_, ts := newTestServer(t, Deps{
		Pipeline: fakePipeline{status: pipeline.Status{
			SourceLanguage: "en",
			TargetLanguage: "es",
			Confirmation:   pipeline.ConfirmButtons,
			Sinks:          []string{"x", "telegram"},
			Pending:        2,
		}},
		Channels: fakeChannels{infos: []protocol.ChannelInfo{
			{Type: "telegram", Status: "running", LastActivity: lastActivity},
			{Type: "slack", Status: "stopped"},
		}},
		History: fakeHistory{count: 7},
	})

	statusResp, err := fetchStatus(ts.URL + "/status")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	if len(statusResp.Channels) != 2 || statusResp.Channels[0].Type != "telegram" || statusResp.Channels[0].Status != "running" {
		t.Fatalf("unexpected channels: %#v", statusResp.Channels)
	}
	if got := statusResp.Channels[0].LastActivity; got != lastActivity.Format(time.RFC3339) {
		t.Fatalf("last_activity=%q", got)
	}
	if statusResp.Channels[1].LastActivity != "" || statusResp.Channels[1].LastError != "" {
		t.Fatalf("zero telemetry should be omitted: %#v", statusResp.Channels[1])
	}
	p := statusResp.Pipeline
	if p == nil || p.TargetLanguage != "es" || p.Confirmation != "buttons" || p.Pending != 2 || len(p.Sinks) != 2 {
		t.Fatalf("unexpected pipeline status: %#v", p)
	}
	if statusResp.Shares == nil || *statusResp.Shares != 7 {
		t.Fatalf("unexpected shares: %v", statusResp.Shares)
	}
	if statusResp.StartedAt == "" {
		t.Fatalf("expected started_at")
	}
}

func TestStatusDegradedWhenHistoryFails(t *testing.T) {
	_, ts := newTestServer(t, Deps{History: fakeHistory{err: errors.New("database is locked")}})

	statusResp, err := fetchStatus(ts.URL + "/status")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	if statusResp.Status != "degraded" || statusResp.Shares != nil {
		t.Fatalf("unexpected status: %#v", statusResp)
	}
}

func TestStatusDoesNotExposeTranslations(t *testing.T) {
	_, ts := newTestServer(t, Deps{Pipeline: fakePipeline{status: pipeline.Status{Sinks: []string{"x"}}}})

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if strings.Contains(string(body), "translated_text") || strings.Contains(string(body), "token") {
		t.Fatalf("status response leaked content: %s", body)
	}
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, Deps{})
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Fatalf("unexpected health response %d %q", resp.StatusCode, body)
	}
}

func TestPublishReachesSubscribedClientsOnly(t *testing.T) {
	server, ts := newTestServer(t, Deps{})
	subscriber := dial(t, ts, "?session=watcher")
	idle := dial(t, ts, "?session=idle")

	ack := roundTrip(t, subscriber, protocol.Message{Kind: protocol.MessageKindEvent, Action: protocol.ActionSubscribe})
	if ack.Action != protocol.ActionSubscribe || ack.Error != "" {
		t.Fatalf("unexpected subscribe ack: %#v", ack)
	}
	if err := waitForActiveClients(server, 2, time.Second); err != nil {
		t.Fatal(err)
	}

	server.Publish(&protocol.Message{
		Kind:   protocol.MessageKindEvent,
		Action: protocol.ActionShared,
		Data:   protocol.ShareEvent{ID: "share-1", ConversationID: "1:2"},
	})

	got := readMessage(t, subscriber)
	if got.Action != protocol.ActionShared {
		t.Fatalf("unexpected event: %#v", got)
	}
	data, ok := got.Data.(map[string]interface{})
	if !ok || data["id"] != "share-1" {
		t.Fatalf("unexpected event payload: %#v", got.Data)
	}

	// The idle client only sees its own echo.
	echo := roundTrip(t, idle, protocol.Message{Kind: protocol.MessageKindEvent, Action: protocol.ActionEcho, Data: "ping"})
	if echo.Action != protocol.ActionEcho {
		t.Fatalf("idle client received a broadcast: %#v", echo)
	}
}

func TestClientStatusAndChannelQueries(t *testing.T) {
	_, ts := newTestServer(t, Deps{
		Channels: fakeChannels{infos: []protocol.ChannelInfo{{Type: "telegram", Status: "running"}}},
	})
	conn := dial(t, ts, "")

	status := roundTrip(t, conn, protocol.Message{Kind: protocol.MessageKindStatus})
	data, ok := status.Data.(map[string]interface{})
	if status.Kind != protocol.MessageKindStatus || !ok || data["status"] != "ok" {
		t.Fatalf("unexpected status reply: %#v", status)
	}

	list := roundTrip(t, conn, protocol.Message{Kind: protocol.MessageKindChannel})
	items, ok := list.Data.([]interface{})
	if list.Kind != protocol.MessageKindChannel || !ok || len(items) != 1 {
		t.Fatalf("unexpected channel reply: %#v", list)
	}

	unknown := roundTrip(t, conn, protocol.Message{Kind: "agent"})
	if unknown.Error == "" {
		t.Fatalf("expected error for unknown kind")
	}
	badAction := roundTrip(t, conn, protocol.Message{Kind: protocol.MessageKindEvent, Action: "explode"})
	if badAction.Error == "" {
		t.Fatalf("expected error for unknown action")
	}
}

func TestSessionTakeover(t *testing.T) {
	server, ts := newTestServer(t, Deps{})
	first := dial(t, ts, "?session=same")
	if err := waitForActiveClients(server, 1, time.Second); err != nil {
		t.Fatal(err)
	}
	_ = dial(t, ts, "?session=same")

	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := first.ReadMessage(); err == nil {
		t.Fatalf("expected first connection to be closed")
	}
	if err := waitForActiveClients(server, 1, time.Second); err != nil {
		t.Fatalf("takeover should keep one client: %v", err)
	}
}

func TestNewServerRequiresConfig(t *testing.T) {
	if _, err := NewServer(nil, Deps{}, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for nil config")
	}
}
