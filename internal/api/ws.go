package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/keepdeck-io/keepdeck/internal/taskmgr"
	"github.com/keepdeck-io/keepdeck/internal/ws"
)

// WSHandler handles the WebSocket upgrade endpoint GET /api/v1/ws.
// Authentication runs through the same Authenticate middleware as the REST
// routes; browsers cannot set custom headers on native WebSocket connections,
// which is why the middleware also accepts a `token` query parameter.
//
// Topic subscription is declared at connection time via the `topics` query
// parameter. The firehose topic is always added so dashboards work without
// enumerating entities up front.
//
// Example connection URL:
//
//	ws://host/api/v1/ws?token=<jwt>&topics=task:id1,target:id2
type WSHandler struct {
	hub    *ws.Hub
	mgr    *taskmgr.Manager
	logger *zap.Logger
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(hub *ws.Hub, mgr *taskmgr.Manager, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		hub:    hub,
		mgr:    mgr,
		logger: logger.Named("ws_handler"),
	}
}

// ServeWS handles GET /api/v1/ws.
// It builds the topic list, upgrades the connection, holds a subscription on
// both refresh pollers for the lifetime of the connection, and starts the
// client read/write pumps. The handler blocks until the connection closes —
// this is expected for WebSocket handlers.
//
// The poller subscription is what makes live updates work: events only flow
// while something polls the daemon, and a connected WebSocket client is
// exactly the "visible view" the pollers count.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	topics := resolveTopics(r)

	taskPoll, err := h.mgr.TaskPoller().Start()
	if err != nil {
		h.logger.Error("ws: starting task poller", zap.Error(err))
		ErrInternal(w)
		return
	}
	defer h.mgr.TaskPoller().Stop(taskPoll)

	targetPoll, err := h.mgr.TargetPoller().Start()
	if err != nil {
		h.logger.Error("ws: starting target poller", zap.Error(err))
		ErrInternal(w)
		return
	}
	defer h.mgr.TargetPoller().Stop(targetPoll)

	client, err := ws.NewClient(h.hub, w, r, topics, h.logger)
	if err != nil {
		// The response has already been written by the upgrader on error.
		h.logger.Warn("ws: upgrade failed", zap.Error(err))
		return
	}

	h.logger.Info("ws: client connected",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Strings("topics", topics),
	)

	// Run blocks until the connection closes. readPump and writePump handle
	// cleanup and hub unregistration internally.
	client.Run()

	h.logger.Info("ws: client disconnected",
		zap.String("remote_addr", r.RemoteAddr),
	)
}

// resolveTopics builds the final topic list for a client connection: the
// firehose plus any explicit topics from the `topics` query parameter
// (comma-separated). Unknown topic strings are silently ignored — the client
// will simply never receive messages for topics nothing publishes to.
func resolveTopics(r *http.Request) []string {
	seen := make(map[string]struct{})
	var topics []string

	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" {
			return
		}
		if _, exists := seen[t]; !exists {
			seen[t] = struct{}{}
			topics = append(topics, t)
		}
	}

	add(ws.TopicEvents)

	if raw := r.URL.Query().Get("topics"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			add(t)
		}
	}

	return topics
}
