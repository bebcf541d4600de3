package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"visitplan/internal/model"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 20 * time.Second
	wsWriteWait  = 5 * time.Second
)

// JobWSHandler streams the job's events over a WebSocket. Each frame is a
// JSON model.JobEvent; the first is a job.snapshot of the current state.
// The server closes the socket after the final event.
func (s *Server) JobWSHandler(w http.ResponseWriter, r *http.Request, job model.Job) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	ch := s.Broker.Subscribe(job.ID)
	defer s.Broker.Unsubscribe(job.ID, ch)
	if cur, err := s.Store.GetJob(r.Context(), job.ID); err == nil {
		job = cur
	}

	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(v)
	}
	closeNormal := func() {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"), time.Now().Add(wsWriteWait))
	}

	if err := write(model.JobEvent{Type: "job.snapshot", JobID: job.ID, TS: time.Now().UTC(), Data: job}); err != nil {
		return
	}
	if job.Terminal() {
		closeNormal()
		return
	}

	// reader: only control frames are expected; it notices the peer leaving
	gone := make(chan struct{})
	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsPongWait)) })
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return
		case <-ping.C:
			wmu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			wmu.Unlock()
			if err != nil {
				return
			}
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := write(evt); err != nil {
				return
			}
			if evt.Type == model.EventJobCompleted || evt.Type == model.EventJobFailed {
				closeNormal()
				return
			}
		}
	}
}
