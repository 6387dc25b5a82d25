package web

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/modoterra/gatewatch/pkg/core"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// backlog returns buffered entries after ?since_id, or nothing when absent.
func (s *Server) backlog(c *gin.Context) ([]core.RetainedEntry, error) {
	if c.Query("since_id") == "" {
		return nil, nil
	}
	sinceID, err := intQuery(c, "since_id", 0)
	if err != nil {
		return nil, err
	}
	return s.engine.Feed(sinceID, 0).Entries, nil
}

// lastEntryID is the id of the newest entry, or zero. Entries are in id order.
func lastEntryID(entries []core.RetainedEntry) int64 {
	if len(entries) == 0 {
		return 0
	}
	return entries[len(entries)-1].ID
}

// handleTail streams new entries as server-sent events.
func (s *Server) handleTail(c *gin.Context) {
	entries, cancel := s.hub.Subscribe()
	defer cancel()
	backlog, err := s.backlog(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	lastID := lastEntryID(backlog)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	for _, e := range backlog {
		c.SSEvent("entry", e)
	}
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case e, ok := <-entries:
			if !ok {
				return false
			}
			if e.ID > lastID {
				c.SSEvent("entry", e)
			}
			return true
		}
	})
}

// handleWebSocket upgrades to WebSocket and streams entries as JSON frames.
func (s *Server) handleWebSocket(c *gin.Context) {
	entries, cancel := s.hub.Subscribe()
	defer cancel()
	backlog, err := s.backlog(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	lastID := lastEntryID(backlog)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	// Read pump: detect client disconnect.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, e := range backlog {
		if err := conn.WriteJSON(e); err != nil {
			return
		}
	}

	for {
		select {
		case <-closed:
			return
		case e, ok := <-entries:
			if !ok {
				return
			}
			if e.ID <= lastID {
				continue
			}
			if err := conn.WriteJSON(e); err != nil {
				s.logger.Debug("websocket write failed", "err", err)
				return
			}
		}
	}
}
