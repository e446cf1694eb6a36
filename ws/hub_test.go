package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/testpulse/testpulse/config"
	"github.com/testpulse/testpulse/engine"
	"github.com/testpulse/testpulse/record"
	"github.com/testpulse/testpulse/scoring"
	"github.com/testpulse/testpulse/uploader"
	wsHub "github.com/testpulse/testpulse/ws"
)

const testInterval = 20 * time.Millisecond

// --- helpers ----------------------------------------------------------------

type nopSink struct{}

func (nopSink) Upload(_ context.Context, recs []record.ExecutionRecord) uploader.Result {
	return uploader.Result{Success: true, DeliveredRecords: len(recs)}
}

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cfg := config.Defaults().Engine
	cfg.FlushInterval = time.Hour
	eng := engine.New(cfg, nopSink{})
	t.Cleanup(func() { eng.Close(context.Background()) })
	return eng
}

// seedScored drives one test identity past the scoring gate and waits until
// the engine has absorbed every run.
func seedScored(t *testing.T, eng *engine.Engine, name string) {
	t.Helper()
	for i := 0; i < 10; i++ {
		err := eng.RecordExecution(record.ExecutionRecord{
			ExecutionID: record.NewExecutionID(),
			Identity:    record.NewIdentity(name, ""),
			Outcome:     record.OutcomePassed,
			StartTime:   time.Date(2026, 5, 1, 7, 0, 0, 0, time.UTC),
			Duration:    12 * time.Millisecond,
			Retry:       record.RetryMetadata{Attempt: 1},
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	fp := record.Fingerprint(name, "")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if eng.Runs(fp) >= 10 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("engine did not absorb runs for %s", name)
}

// startHub starts a test HTTP server with the hub as its handler.
// The hub's Run loop is started with a cancellable context.
// Returns the ws:// URL, the hub, and a cleanup function.
func startHub(t *testing.T, eng *engine.Engine) (wsURL string, hub *wsHub.Hub, cancel func()) {
	t.Helper()

	hub = wsHub.New(eng, testInterval)
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, hub, cancelFn
}

// dial connects a WebSocket client to wsURL and returns the connection.
func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessage reads one text message from conn with a short deadline.
func readMessage(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	return msg
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesImmediateSnapshot(t *testing.T) {
	eng := newEngine(t)
	seedScored(t, eng, "pkg.TestImmediate")
	wsURL, _, _ := startHub(t, eng)

	conn := dial(t, wsURL)
	msg := readMessage(t, conn)

	var m map[string]interface{}
	if err := json.Unmarshal(msg, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["event"] != "snapshot" {
		t.Errorf("event: got %v, want snapshot", m["event"])
	}
	data, ok := m["data"].(map[string]interface{})
	if !ok {
		t.Fatal("data: missing or wrong type")
	}
	if data["generated_at"] == nil || data["generated_at"] == "" {
		t.Error("generated_at: missing")
	}
}

func TestHub_MessageContainsTests(t *testing.T) {
	eng := newEngine(t)
	seedScored(t, eng, "pkg.TestOne")
	seedScored(t, eng, "pkg.TestTwo")
	wsURL, _, _ := startHub(t, eng)

	conn := dial(t, wsURL)
	msg := readMessage(t, conn)

	var m map[string]interface{}
	json.Unmarshal(msg, &m) //nolint:errcheck
	data := m["data"].(map[string]interface{})
	tests, ok := data["tests"].([]interface{})
	if !ok {
		t.Fatal("tests: missing or wrong type")
	}
	if len(tests) != 2 {
		t.Errorf("tests: got %d, want 2", len(tests))
	}
}

func TestHub_EmptyEngine_EmptyTests(t *testing.T) {
	wsURL, _, _ := startHub(t, newEngine(t))
	conn := dial(t, wsURL)
	msg := readMessage(t, conn)

	var m map[string]interface{}
	json.Unmarshal(msg, &m) //nolint:errcheck
	data := m["data"].(map[string]interface{})
	tests := data["tests"].([]interface{})
	if len(tests) != 0 {
		t.Errorf("tests: got %d, want 0", len(tests))
	}
}

func TestHub_CountClients_SingleClient(t *testing.T) {
	wsURL, hub, _ := startHub(t, newEngine(t))

	conn := dial(t, wsURL)
	readMessage(t, conn) // consume initial message

	// Give the hub a moment to register the client.
	time.Sleep(10 * time.Millisecond)
	if n := hub.Count(); n != 1 {
		t.Errorf("Count: got %d, want 1", n)
	}
}

func TestHub_CountClients_MultipleClients(t *testing.T) {
	wsURL, hub, _ := startHub(t, newEngine(t))

	for i := 0; i < 3; i++ {
		conn := dial(t, wsURL)
		readMessage(t, conn) // consume initial message
	}

	time.Sleep(10 * time.Millisecond)
	if n := hub.Count(); n != 3 {
		t.Errorf("Count: got %d, want 3", n)
	}
}

func TestHub_CountClients_DecreasesOnDisconnect(t *testing.T) {
	wsURL, hub, _ := startHub(t, newEngine(t))

	conn := dial(t, wsURL)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	if n := hub.Count(); n != 1 {
		t.Errorf("Count before disconnect: got %d, want 1", n)
	}

	conn.Close()
	time.Sleep(50 * time.Millisecond) // let readPump detect the close

	if n := hub.Count(); n != 0 {
		t.Errorf("Count after disconnect: got %d, want 0", n)
	}
}

func TestHub_ReceivesBroadcastOnTick(t *testing.T) {
	eng := newEngine(t)
	wsURL, _, _ := startHub(t, eng)

	conn := dial(t, wsURL)
	readMessage(t, conn) // consume immediate snapshot (no tests yet)

	// Score a test after connect.
	seedScored(t, eng, "pkg.TestLateArrival")

	// Ticks keep broadcasting; eventually one carries the new test.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msg := readMessage(t, conn)
		var m map[string]interface{}
		json.Unmarshal(msg, &m) //nolint:errcheck
		data := m["data"].(map[string]interface{})
		if tests, ok := data["tests"].([]interface{}); ok && len(tests) == 1 {
			return
		}
	}
	t.Fatal("no broadcast carried the newly scored test")
}

func TestHub_PublishPushesUpdateWithoutWaitingForTick(t *testing.T) {
	eng := newEngine(t)
	wsURL, hub, _ := startHub(t, eng)

	conn := dial(t, wsURL)
	readMessage(t, conn) // consume immediate snapshot

	hub.Publish(&scoring.Result{
		Fingerprint: "fp-live",
		Defined:     true,
		Score:       0.42,
		Level:       scoring.LevelMedium,
		Trend:       scoring.TrendStable,
		RunCount:    20,
		ComputedAt:  time.Now(),
	})

	// Snapshot ticks may interleave; scan until the update arrives.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msg := readMessage(t, conn)
		var m map[string]interface{}
		json.Unmarshal(msg, &m) //nolint:errcheck
		if m["event"] != "update" {
			continue
		}
		data, ok := m["data"].(map[string]interface{})
		if !ok {
			t.Fatalf("update without data: %s", msg)
		}
		if data["fingerprint"] != "fp-live" {
			t.Errorf("fingerprint: got %v, want fp-live", data["fingerprint"])
		}
		if data["score"] != 0.42 {
			t.Errorf("score: got %v, want 0.42", data["score"])
		}
		return
	}
	t.Fatal("no update event received after Publish")
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	wsURL, _, cancel := startHub(t, newEngine(t))

	conn := dial(t, wsURL)
	readMessage(t, conn)

	cancel()

	// The server sends a close frame; the next read fails with a close error.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure) {
				return
			}
			return // any terminal error means the server ended the session
		}
	}
}
