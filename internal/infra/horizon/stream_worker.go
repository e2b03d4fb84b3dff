package horizon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"ledger_go/internal/event"
	"ledger_go/internal/infra"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// StreamWorker maintains the settlement stream connection and delivers
// offer updates to the engine's fill inbox. The polling monitor remains
// authoritative; the stream is a low-latency supplement and may drop
// frames under pressure.
type StreamWorker struct {
	streamURL string
	accountID string
	inbox     chan<- *event.FillUpdateEvent

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewStreamWorker creates a settlement stream worker for one account.
func NewStreamWorker(streamURL, accountID string, inbox chan<- *event.FillUpdateEvent) *StreamWorker {
	return &StreamWorker{
		streamURL: streamURL,
		accountID: accountID,
		inbox:     inbox,
	}
}

// Connect starts the connection loop in the background.
func (w *StreamWorker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

func (w *StreamWorker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			slog.Warn("Settlement stream connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			delay := infra.CalculateBackoff(retryCount)
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		} else {
			retryCount = 0
			w.readLoop(ctx)
		}
	}
}

func (w *StreamWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := make(http.Header)

	conn, _, err := dialer.DialContext(ctx, w.streamURL, header)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()

	if err := w.subscribe(); err != nil {
		w.closeConnection()
		return err
	}

	slog.Info("Settlement stream connected", slog.String("account", w.accountID))
	return nil
}

func (w *StreamWorker) subscribe() error {
	msg := subscribeRequest{
		Op:      "subscribe",
		Channel: "offers",
		Account: w.accountID,
	}
	b, _ := json.Marshal(msg)
	return w.threadSafeWrite(websocket.TextMessage, b)
}

func (w *StreamWorker) threadSafeWrite(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		return fmt.Errorf("no conn")
	}
	return w.conn.WriteMessage(msgType, data)
}

func (w *StreamWorker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Capture the connection under the lock; a concurrent
		// Disconnect may nil the field while we block in ReadMessage.
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, msg, err := conn.ReadMessage()
		if err != nil {
			w.closeConnection()
			return
		}
		w.handleMessage(msg)
	}
}

func (w *StreamWorker) handleMessage(msg []byte) {
	var frame offerStreamMessage
	if json.Unmarshal(msg, &frame) != nil || frame.Type != "offer_update" {
		return
	}
	if frame.AccountID != w.accountID {
		return
	}

	remaining := decimal.Zero
	if !frame.Deleted {
		var err error
		remaining, err = decimal.NewFromString(frame.Remaining)
		if err != nil {
			slog.Warn("Dropping malformed stream frame",
				slog.Int64("offer_id", frame.OfferID), slog.String("remaining", frame.Remaining))
			return
		}
	}

	ev := event.AcquireFillUpdateEvent()
	ev.OfferID = frame.OfferID
	ev.Remaining = remaining
	ev.Deleted = frame.Deleted
	ev.Ts = frame.Ts

	select {
	case w.inbox <- ev:
	default:
		// The polling monitor reconciles anything the stream drops.
		event.ReleaseFillUpdateEvent(ev)
	}
}

func (w *StreamWorker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connected = false
}

// Disconnect stops the loop and closes the connection.
func (w *StreamWorker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
}
