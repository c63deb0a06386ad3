package api

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"

	"token-knowledge/internal/report"
	"token-knowledge/internal/universe"
)

type ReportRequest struct {
	Message string `json:"message"`
}

type ReportResponse struct {
	OK     bool   `json:"ok"`
	Report string `json:"report,omitempty"`
	Error  string `json:"error,omitempty"`
}

func RegisterRoutes(h *server.Hertz, reports *report.Service, refresher *universe.Refresher) {
	h.GET("/healthz", func(_ context.Context, c *app.RequestContext) {
		c.JSON(200, map[string]bool{"ok": true})
	})

	h.POST("/api/v1/report", func(ctx context.Context, c *app.RequestContext) {
		if reports == nil {
			c.JSON(http.StatusInternalServerError, ReportResponse{Error: "report service not configured"})
			return
		}

		var req ReportRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ReportResponse{Error: "invalid json body"})
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			c.JSON(http.StatusBadRequest, ReportResponse{Error: "message is empty"})
			return
		}

		c.JSON(http.StatusOK, ReportResponse{OK: true, Report: reports.Report(ctx, req.Message)})
	})

	h.GET("/api/v1/market/global", func(ctx context.Context, c *app.RequestContext) {
		if reports == nil {
			c.JSON(http.StatusInternalServerError, ReportResponse{Error: "report service not configured"})
			return
		}
		c.JSON(http.StatusOK, ReportResponse{OK: true, Report: reports.GlobalReport(ctx)})
	})

	h.POST("/api/v1/universe/refresh", func(ctx context.Context, c *app.RequestContext) {
		if refresher == nil {
			c.JSON(http.StatusInternalServerError, ReportResponse{Error: "refresher not configured"})
			return
		}
		if err := refresher.Refresh(ctx); err != nil {
			log.Printf("universe refresh error: %v", err)
			c.JSON(http.StatusBadGateway, ReportResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, ReportResponse{OK: true})
	})
}
