package transport

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerHealthz(t *testing.T) {
	srv := NewServer(NewHub(nil))
	_, err := srv.Start("127.0.0.1", 0)
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
}

func TestServerEphemeralPortFallback(t *testing.T) {
	first := NewServer(NewHub(nil))
	boundPort, err := first.Start("127.0.0.1", 0)
	require.NoError(t, err)
	defer first.Shutdown(context.Background())
	require.NotZero(t, boundPort)

	second := NewServer(NewHub(nil))
	fallbackPort, err := second.Start("127.0.0.1", boundPort)
	require.NoError(t, err)
	defer second.Shutdown(context.Background())

	assert.NotEqual(t, boundPort, fallbackPort)
}

func TestServerOverlayInputDedupByRequestID(t *testing.T) {
	srv := NewServer(NewHub(nil))
	var mu sync.Mutex
	var calls int
	srv.OnOverlayInput(func(text, requestID string) {
		mu.Lock()
		defer mu.Unlock()
		calls++
	})

	_, err := srv.Start("127.0.0.1", 0)
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	ws := dialOverlay(t, srv.Addr())
	defer ws.Close()

	in := Inbound{Event: EventOverlayInput, Text: "open tab", RequestID: "req-dup"}
	require.NoError(t, ws.WriteJSON(in))
	require.NoError(t, ws.WriteJSON(in))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

func TestServerOverlayInputDedupByNormalizedText(t *testing.T) {
	srv := NewServer(NewHub(nil))
	var mu sync.Mutex
	var texts []string
	srv.OnOverlayInput(func(text, requestID string) {
		mu.Lock()
		defer mu.Unlock()
		texts = append(texts, text)
	})

	_, err := srv.Start("127.0.0.1", 0)
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	ws := dialOverlay(t, srv.Addr())
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(Inbound{Event: EventOverlayInput, Text: "  Open Tab  "}))
	require.NoError(t, ws.WriteJSON(Inbound{Event: EventOverlayInput, Text: "open tab"}))

	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, texts, 1)
}

func TestServerCaptureScreenshotAndStopAll(t *testing.T) {
	srv := NewServer(NewHub(nil))
	captured := make(chan struct{}, 1)
	stopped := make(chan struct{}, 1)
	srv.OnCaptureScreenshot(func() { captured <- struct{}{} })
	srv.OnStopAll(func() { stopped <- struct{}{} })

	_, err := srv.Start("127.0.0.1", 0)
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	ws := dialOverlay(t, srv.Addr())
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(Inbound{Event: EventCaptureScreenshot}))
	require.NoError(t, ws.WriteJSON(Inbound{Event: EventStopAll}))

	select {
	case <-captured:
	case <-time.After(time.Second):
		t.Fatal("capture_screenshot handler not invoked")
	}
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop_all handler not invoked")
	}
}

func TestServerProcsEndpoints(t *testing.T) {
	srv := NewServer(NewHub(nil))
	srv.OnProcsList(func() []ProcessInfo {
		return []ProcessInfo{{ID: "abc123", PID: 42, Command: "npm run dev", Uptime: "2 minutes ago"}}
	})
	var stoppedID string
	srv.OnProcsStop(func(id string) error {
		stoppedID = id
		return nil
	})
	srv.OnProcsStopAll(func() int { return 3 })

	_, err := srv.Start("127.0.0.1", 0)
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	resp, err := http.Get("http://" + srv.Addr() + "/procs")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "abc123")

	resp, err = http.Post("http://"+srv.Addr()+"/procs/abc123/stop", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc123", stoppedID)

	resp, err = http.Post("http://"+srv.Addr()+"/procs/stopall", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ = io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"stopped":3`)
}

func dialOverlay(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	url := "ws://" + addr + "/ws"
	var conn *websocket.Conn
	var err error
	for i := 0; i < 20; i++ {
		conn, _, err = websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			return conn
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err, strings.TrimSpace("failed to dial overlay websocket"))
	return conn
}
