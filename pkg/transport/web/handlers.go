package web

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/modoterra/gatewatch/pkg/activity"
	"github.com/modoterra/gatewatch/pkg/core"
	"github.com/modoterra/gatewatch/pkg/daemon"
)

// defaultFeedLimit caps /api/network/log when no limit is given.
const defaultFeedLimit = 100

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// intQuery parses an optional integer query parameter.
func intQuery(c *gin.Context, name string, def int64) (int64, error) {
	v := c.Query(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, struct {
		daemon.Status
		StreamClients int   `json:"stream_clients"`
		StreamDropped int64 `json:"stream_dropped"`
	}{s.engine.Status(), s.hub.Subscribers(), s.hub.Dropped()})
}

func (s *Server) handleFeed(c *gin.Context) {
	sinceID, err := intQuery(c, "since_id", 0)
	if err != nil {
		badRequest(c, err)
		return
	}
	limit, err := intQuery(c, "limit", defaultFeedLimit)
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, s.engine.Feed(sinceID, int(limit)))
}

func (s *Server) handlePoll(c *gin.Context) {
	window, err := intQuery(c, "window", 0)
	if err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.engine.Poll(c.Request.Context(), int(window))
	if err != nil {
		if c.Request.Context().Err() != nil {
			c.JSON(499, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleClear(c *gin.Context) {
	s.engine.Clear()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handlePause(c *gin.Context) {
	var set *bool
	if v := c.Query("pause"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, fmt.Errorf("pause must be a boolean"))
			return
		}
		set = &b
	}
	c.JSON(http.StatusOK, gin.H{"paused": s.engine.Pause(set)})
}

func (s *Server) handleActivity(c *gin.Context) {
	limit, err := intQuery(c, "limit", activity.DefaultLimit)
	if err != nil {
		badRequest(c, err)
		return
	}
	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		badRequest(c, err)
		return
	}
	if offset < 0 {
		badRequest(c, fmt.Errorf("offset must not be negative"))
		return
	}
	q := activity.Query{
		Limit:  int(limit),
		Offset: int(offset),
		Agent:  c.Query("agent"),
		Action: c.Query("action"),
		Source: c.Query("source"),
	}
	if q.Source != "" && !slices.Contains(core.Sources, q.Source) {
		badRequest(c, fmt.Errorf("unknown source %q", q.Source))
		return
	}
	c.JSON(http.StatusOK, s.engine.Activity(c.Request.Context(), q))
}

func (s *Server) handleLogActivity(c *gin.Context) {
	var entry core.ActivityEntry
	if err := c.ShouldBindJSON(&entry); err != nil {
		badRequest(c, fmt.Errorf("invalid entry: %w", err))
		return
	}
	if entry.Action == "" {
		badRequest(c, fmt.Errorf("action is required"))
		return
	}
	stored, err := s.engine.LogActivity(context.WithoutCancel(c.Request.Context()), entry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, stored)
}

func (s *Server) handleKnownAgents(c *gin.Context) {
	agents, err := s.engine.KnownAgents()
	if err != nil {
		s.logger.Warn("known agents", "err", err)
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents})
}
