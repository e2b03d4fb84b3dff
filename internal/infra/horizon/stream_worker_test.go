package horizon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ledger_go/internal/event"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// streamServer is a minimal settlement stream endpoint. It records the
// subscribe request and plays the queued frames to the client.
func streamServer(t *testing.T, frames []offerStreamMessage) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub subscribeRequest
		if json.Unmarshal(msg, &sub) != nil || sub.Op != "subscribe" || sub.Channel != "offers" {
			t.Errorf("unexpected subscribe request: %s", msg)
			return
		}

		for _, f := range frames {
			b, _ := json.Marshal(f)
			if conn.WriteMessage(websocket.TextMessage, b) != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStreamWorker_DeliversOfferUpdates(t *testing.T) {
	srv := streamServer(t, []offerStreamMessage{
		{Type: "offer_update", OfferID: 42, AccountID: "GAACCOUNT", Remaining: "250", Ts: 1234},
		{Type: "offer_update", OfferID: 7, AccountID: "GAOTHER", Remaining: "1", Ts: 1235}, // foreign account, dropped
		{Type: "offer_update", OfferID: 43, AccountID: "GAACCOUNT", Deleted: true, Ts: 1236},
	})
	defer srv.Close()

	inbox := make(chan *event.FillUpdateEvent, 8)
	w := NewStreamWorker(wsURL(srv), "GAACCOUNT", inbox)

	if err := w.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer w.Disconnect()

	recv := func() *event.FillUpdateEvent {
		select {
		case ev := <-inbox:
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for stream event")
			return nil
		}
	}

	first := recv()
	if first.OfferID != 42 || first.Deleted || !first.Remaining.Equal(decimal.NewFromInt(250)) {
		t.Errorf("first event = %+v, want offer 42 remaining 250", first)
	}
	event.ReleaseFillUpdateEvent(first)

	second := recv()
	if second.OfferID != 43 || !second.Deleted {
		t.Errorf("second event = %+v, want deleted offer 43 (foreign frame skipped)", second)
	}
	event.ReleaseFillUpdateEvent(second)
}

func TestStreamWorker_DisconnectWhileReading(t *testing.T) {
	srv := streamServer(t, nil)
	defer srv.Close()

	inbox := make(chan *event.FillUpdateEvent, 1)
	w := NewStreamWorker(wsURL(srv), "GAACCOUNT", inbox)

	if err := w.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	// Give the read loop time to block on the silent connection, then
	// tear down underneath it. Disconnect must return without the read
	// loop touching a closed-out connection field.
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		w.Disconnect()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect did not return")
	}
}
