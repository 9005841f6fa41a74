package session

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

type wsWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// outboundWriter owns all writes to the socket. Gateway control events
// (open, error, close) preempt relayed provider payloads so a client
// always learns about session state promptly even under audio load.
type outboundWriter struct {
	ws           wsWriter
	ctx          context.Context
	control      <-chan []byte
	relay        <-chan []byte
	pingInterval time.Duration
	writeTimeout time.Duration
}

func (w *outboundWriter) Run() error {
	if w == nil || w.ws == nil {
		return nil
	}

	pingInterval := w.pingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	writeTimeout := w.writeTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	var ctxDone <-chan struct{}
	if w.ctx != nil {
		ctxDone = w.ctx.Done()
	}

	for {
		if w.ctx != nil {
			select {
			case <-w.ctx.Done():
				w.flushControlOnShutdown(writeTimeout)
				deadline := time.Now().Add(writeTimeout)
				_ = w.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				_ = w.ws.Close()
				return nil
			default:
			}
		}

		// Control frames first when anything is queued.
		select {
		case payload, ok := <-w.control:
			if !ok {
				w.control = nil
				continue
			}
			if err := w.write(payload, writeTimeout); err != nil {
				return err
			}
			continue
		default:
		}

		if w.control == nil && w.relay == nil {
			return nil
		}

		select {
		case <-ctxDone:
			// loop back so the shutdown flush path runs
			continue
		case <-pingTicker.C:
			deadline := time.Now().Add(writeTimeout)
			if err := w.ws.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				return err
			}
		case payload, ok := <-w.control:
			if !ok {
				w.control = nil
				continue
			}
			if err := w.write(payload, writeTimeout); err != nil {
				return err
			}
		case payload, ok := <-w.relay:
			if !ok {
				w.relay = nil
				continue
			}
			if err := w.write(payload, writeTimeout); err != nil {
				return err
			}
		}
	}
}

// flushControlOnShutdown drains already-queued control events so a final
// error or close reaches the client before the socket drops.
func (w *outboundWriter) flushControlOnShutdown(writeTimeout time.Duration) {
	if w.control == nil {
		return
	}
	const maxFlushFrames = 4
	for i := 0; i < maxFlushFrames; i++ {
		select {
		case payload, ok := <-w.control:
			if !ok {
				return
			}
			_ = w.write(payload, writeTimeout)
		default:
			return
		}
	}
}

func (w *outboundWriter) write(payload []byte, writeTimeout time.Duration) error {
	if len(payload) == 0 {
		return nil
	}
	if err := w.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return w.ws.WriteMessage(websocket.TextMessage, payload)
}
