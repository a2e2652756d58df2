package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"convconv/internal/entity"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

var (
	errConnClosed   = errors.New("connection closed")
	errSlowConsumer = errors.New("send buffer full")
)

// wsConn adapts a websocket to service.Connection. Send only queues; a
// single writePump goroutine owns every write to the socket. A connection
// whose queue is full is closed and dropped.
type wsConn struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	onClose   func(*wsConn)
}

func newWSConn(conn *websocket.Conn, onClose func(*wsConn)) *wsConn {
	return &wsConn{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

func (c *wsConn) Send(payload []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		c.close()
		return errSlowConsumer
	}
}

func (c *wsConn) IsOpen() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *wsConn) sendEvent(ev entity.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.Send(payload)
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	})
}

// clientMessage is a frame sent by the browser.
type clientMessage struct {
	Type  entity.EventType `json:"type"`
	JobID string           `json:"jobId"`
}

func (h *Handler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.origins) == 0 {
		return true
	}
	for _, o := range h.origins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// ServeWS godoc
// @Summary Job event stream
// @Description WebSocket. Send {"type":"subscribe","jobId":"..."} to receive progress, complete and error events for a job.
// @Tags events
// @Router /ws [get]
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	wc := newWSConn(conn, func(c *wsConn) { h.events.RemoveConnection(c) })
	h.log.Debug("websocket connected", zap.String("remote", r.RemoteAddr))

	defer func() {
		wc.close()
		h.events.RemoveConnection(wc)
		h.log.Debug("websocket disconnected", zap.String("remote", r.RemoteAddr))
	}()
	go h.writePump(wc)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read", zap.Error(err))
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.Debug("websocket message error", zap.Error(err))
			continue
		}
		h.handleClientMessage(r, wc, msg)
	}
}

func (h *Handler) handleClientMessage(r *http.Request, wc *wsConn, msg clientMessage) {
	if msg.JobID == "" || !wc.IsOpen() {
		return
	}
	switch msg.Type {
	case entity.EventSubscribe:
		if _, err := h.jobSvc.GetJob(r.Context(), msg.JobID); err != nil {
			_ = wc.sendEvent(entity.Event{Type: entity.EventError, JobID: msg.JobID, Data: entity.ErrorData{Error: "Job not found"}})
			return
		}
		// ack first so it never trails the job's first event
		_ = wc.sendEvent(entity.Event{Type: entity.EventSubscribed, JobID: msg.JobID})
		h.events.Subscribe(wc, msg.JobID)

		// the job may have finished before the subscription existed
		if job, err := h.jobSvc.GetJob(r.Context(), msg.JobID); err == nil && job.Status.IsTerminal() {
			_ = wc.sendEvent(terminalEvent(job))
		}
	case entity.EventUnsubscribe:
		h.events.Unsubscribe(wc, msg.JobID)
	}
}

// terminalEvent is the event a finished job last broadcast.
func terminalEvent(job entity.Job) entity.Event {
	if job.Status == entity.StatusCompleted {
		return entity.Event{Type: entity.EventComplete, JobID: job.ID, Data: entity.CompleteData{DownloadURL: job.DownloadURL}}
	}
	reason := job.Error
	if reason == "" {
		reason = "Unknown error"
	}
	return entity.Event{Type: entity.EventError, JobID: job.ID, Data: entity.ErrorData{Error: reason}}
}

// writePump drains the send queue and pings the peer until the connection closes.
func (h *Handler) writePump(wc *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wc.close()
	}()

	for {
		select {
		case <-wc.done:
			return
		case payload := <-wc.send:
			_ = wc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wc.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.log.Debug("websocket write", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := wc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
