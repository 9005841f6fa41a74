package sdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// gatewayStub speaks just enough of the gateway protocol for transport
// tests: it acks init with an open event and records later frames.
type gatewayStub struct {
	upgrader websocket.Upgrader
	frames   chan map[string]any
	outbound chan []byte
}

func newGatewayStub() *gatewayStub {
	return &gatewayStub{
		frames:   make(chan map[string]any, 16),
		outbound: make(chan []byte, 16),
	}
}

func (g *gatewayStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	go func() {
		for payload := range g.outbound {
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame map[string]any
		if json.Unmarshal(data, &frame) != nil {
			continue
		}
		if frame["type"] == "init" {
			g.outbound <- []byte(`{"type":"open"}`)
		}
		g.frames <- frame
	}
}

func dialStub(t *testing.T, stub *gatewayStub, events Events) Transport {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	tr, err := DialGateway(context.Background(), url, SessionOptions{
		Language: "french",
		Context:  "greetings",
	}, events)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestDialGatewaySendsInitAndFiresOpen(t *testing.T) {
	stub := newGatewayStub()
	opened := make(chan struct{}, 1)
	dialStub(t, stub, Events{OnOpen: func() { opened <- struct{}{} }})

	select {
	case frame := <-stub.frames:
		if frame["type"] != "init" || frame["language"] != "french" {
			t.Fatalf("init frame = %v", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("init frame never arrived")
	}

	select {
	case <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("OnOpen never fired")
	}
}

func TestWSTransportSendRealtimeAudio(t *testing.T) {
	stub := newGatewayStub()
	tr := dialStub(t, stub, Events{})

	<-stub.frames // init

	if err := tr.SendRealtimeAudio([]byte{0, 1, 2, 3}); err != nil {
		t.Fatalf("send audio: %v", err)
	}

	select {
	case frame := <-stub.frames:
		if frame["type"] != "realtime" {
			t.Fatalf("frame = %v", frame)
		}
		audio, _ := frame["audio"].(map[string]any)
		if audio["data"] == "" {
			t.Fatalf("missing audio data: %v", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("realtime frame never arrived")
	}
}

func TestWSTransportRelaysProviderPayloads(t *testing.T) {
	stub := newGatewayStub()
	messages := make(chan string, 1)
	errs := make(chan error, 1)
	dialStub(t, stub, Events{
		OnMessage: func(raw json.RawMessage) { messages <- string(raw) },
		OnError:   func(err error) { errs <- err },
	})

	payload := `{"serverContent":{"turnComplete":true}}`
	stub.outbound <- []byte(payload)

	select {
	case got := <-messages:
		if got != payload {
			t.Fatalf("payload = %q, want %q", got, payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("payload never relayed")
	}

	stub.outbound <- []byte(`{"type":"error","code":"rate_limited","message":"slow down"}`)
	select {
	case err := <-errs:
		if !strings.Contains(err.Error(), "rate_limited") {
			t.Fatalf("error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error event never surfaced")
	}
}
