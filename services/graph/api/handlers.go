// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


// Package api exposes a graph editing session over HTTP.
//
// Routes:
//
//	POST /v1/commands        dispatch one command envelope
//	GET  /v1/state           component versions and the loaded asset
//	GET  /v1/view            graph view mirror and toolbar counts
//	GET  /v1/history         recent dispatch records
//	GET  /v1/assets          library contents
//	PUT  /v1/assets/:id      add or replace a library asset
//	GET  /health             liveness
//	GET  /metrics            prometheus exposition
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/overdrive/pkg/logging"
	"github.com/AleutianAI/overdrive/services/cso/dispatch"
	"github.com/AleutianAI/overdrive/services/cso/state"
	"github.com/AleutianAI/overdrive/services/cso/telemetry"
	"github.com/AleutianAI/overdrive/services/graph/commands"
	"github.com/AleutianAI/overdrive/services/graph/model"
	"github.com/AleutianAI/overdrive/services/graph/session"
	"github.com/AleutianAI/overdrive/services/graph/states"
)

// ServiceName is the otelgin server name.
const ServiceName = "overdrive"

// Handlers serves requests against one session.
//
// Thread Safety: safe for concurrent use; the session serializes access.
type Handlers struct {
	session *session.Session
	logger  *slog.Logger
}

// NewHandlers returns handlers bound to s.
func NewHandlers(s *session.Session, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{session: s, logger: logging.Component(logger, "api")}
}

// NewRouter builds a gin engine with recovery, tracing and every route.
func NewRouter(h *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(ServiceName))
	RegisterRoutes(router, h)
	return router
}

// RegisterRoutes installs the routes on r.
func RegisterRoutes(r gin.IRouter, h *Handlers) {
	v1 := r.Group("/v1")
	{
		v1.POST("/commands", h.HandleCommand)
		v1.GET("/state", h.HandleState)
		v1.GET("/view", h.HandleView)
		v1.GET("/history", h.HandleHistory)
		v1.GET("/assets", h.HandleListAssets)
		v1.PUT("/assets/:id", h.HandlePutAsset)
	}
	r.GET("/health", h.HandleHealth)
	r.GET("/metrics", h.HandleMetrics)
}

// HandleCommand handles POST /v1/commands.
//
// Description:
//
//	Decodes the envelope's args into the named command type, validates it
//	and submits it to the session. The response carries the component
//	versions after the dispatch cycle, follow-ups included.
//
// Response Codes:
//   - 200: Command dispatched.
//   - 400: Malformed envelope, unknown command or invalid args.
//   - 404: The command names an element that does not exist.
//   - 409: No graph is loaded.
//   - 422: The command is well formed but cannot apply to the graph.
//   - 503: The session is closed.
func (h *Handlers) HandleCommand(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleCommand")

	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "INVALID_REQUEST"})
		return
	}
	args := []byte(req.Args)
	if len(args) == 0 {
		args = []byte("{}")
	}

	cmd, err := commands.Decode(req.Command, args)
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	if err := h.session.Submit(c.Request.Context(), cmd); err != nil {
		h.fail(c, logger, err)
		return
	}

	versions, err := h.session.Versions(c.Request.Context())
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	logger.Debug("command dispatched", "command", req.Command)
	c.JSON(http.StatusOK, CommandResponse{Command: req.Command, Versions: versions})
}

// HandleState handles GET /v1/state.
func (h *Handlers) HandleState(c *gin.Context) {
	var resp StateResponse
	err := h.session.Read(c.Request.Context(), func(st *state.State, comps states.Components) error {
		resp.Asset = comps.View.Asset()
		resp.Versions = st.Versions()
		return nil
	})
	if err != nil {
		h.fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleView handles GET /v1/view.
func (h *Handlers) HandleView(c *gin.Context) {
	canvas := h.session.Canvas()
	c.JSON(http.StatusOK, ViewResponse{
		Elements: canvas.Elements(),
		Stats:    canvas.Stats(),
		Toolbar:  h.session.Toolbar().Counts(),
	})
}

// HandleHistory handles GET /v1/history.
func (h *Handlers) HandleHistory(c *gin.Context) {
	recs, err := h.session.History(c.Request.Context())
	if err != nil {
		h.fail(c, h.logger, err)
		return
	}
	if recs == nil {
		recs = []dispatch.Record{}
	}
	c.JSON(http.StatusOK, HistoryResponse{Records: recs})
}

// HandleListAssets handles GET /v1/assets.
func (h *Handlers) HandleListAssets(c *gin.Context) {
	assets := h.session.Library().Assets()
	out := make([]AssetSummary, 0, len(assets))
	for _, a := range assets {
		out = append(out, AssetSummary{ID: a.ID, Name: a.Name, Elements: a.Graph.Len()})
	}
	c.JSON(http.StatusOK, out)
}

// HandlePutAsset handles PUT /v1/assets/:id.
//
// Replacing the loaded asset does not touch the session. Dispatch
// AssetChangedOnDisk to make the view pick the change up.
func (h *Handlers) HandlePutAsset(c *gin.Context) {
	var req AssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	a := &model.Asset{ID: model.ID(c.Param("id")), Name: req.Name, Graph: req.Graph}
	h.session.Library().Put(a)
	c.JSON(http.StatusOK, AssetSummary{ID: a.ID, Name: a.Name, Elements: a.Graph.Len()})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	recs, err := h.session.History(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "closed"})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Commands: len(recs)})
}

// HandleMetrics handles GET /metrics. The OpenTelemetry prometheus
// exporter is served when active, the default registry otherwise.
func (h *Handlers) HandleMetrics(c *gin.Context) {
	handler := telemetry.MetricsHandler()
	if handler == nil {
		handler = promhttp.Handler()
	}
	handler.ServeHTTP(c.Writer, c.Request)
}

// fail maps err to a status code and writes an ErrorResponse.
func (h *Handlers) fail(c *gin.Context, logger *slog.Logger, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	} else {
		logger.Warn("request rejected", "error", err, "code", code)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, commands.ErrUnknownCommand):
		return http.StatusBadRequest, "UNKNOWN_COMMAND"
	case errors.Is(err, commands.ErrInvalidCommand):
		return http.StatusBadRequest, "INVALID_COMMAND"
	case errors.Is(err, dispatch.ErrUnhandledCommand):
		return http.StatusBadRequest, "UNHANDLED_COMMAND"
	case errors.Is(err, model.ErrUnknownElement), errors.Is(err, model.ErrUnknownAsset):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, commands.ErrNoGraph):
		return http.StatusConflict, "NO_GRAPH"
	case errors.Is(err, dispatch.ErrReentrantDispatch):
		return http.StatusConflict, "REENTRANT_DISPATCH"
	case errors.Is(err, model.ErrWrongKind),
		errors.Is(err, model.ErrUnknownField),
		errors.Is(err, model.ErrFieldType),
		errors.Is(err, model.ErrIncompatiblePorts),
		errors.Is(err, model.ErrPortCapacity),
		errors.Is(err, model.ErrLocked),
		errors.Is(err, model.ErrNotCapable),
		errors.Is(err, model.ErrIDInUse):
		return http.StatusUnprocessableEntity, "REJECTED"
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable, "SESSION_CLOSED"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
