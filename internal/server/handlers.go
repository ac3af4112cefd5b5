package server

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roach88/citytrain/internal/app"
	"github.com/roach88/citytrain/internal/feed"
	"github.com/roach88/citytrain/internal/pipeline"
	"github.com/roach88/citytrain/internal/store"
)

const feedContentType = "application/feed+json; charset=utf-8"

// proxyParams is echoed back under _reflect.params.
type proxyParams struct {
	Composition string `json:"composition"`
	URL         string `json:"url"`
	OutputFmt   string `json:"outputFmt"`
}

type reflection struct {
	Params proxyParams              `json:"params"`
	Funcs  []pipeline.FuncInterface `json:"funcs"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleProxy(c *gin.Context) {
	params := proxyParams{
		Composition: c.DefaultQuery("composition", pipeline.DefaultComposition),
		URL:         c.Query("url"),
		OutputFmt:   c.DefaultQuery("outputFmt", "json"),
	}

	if params.OutputFmt != "json" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported outputFmt " + params.OutputFmt})
		return
	}
	if params.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url parameter required"})
		return
	}
	// Local paths are for the CLI only.
	if !feed.IsRemote(params.URL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url must be an http or https URL"})
		return
	}

	funcs, err := pipeline.ParseComposition(params.Composition)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := s.backend.Enhance(c.Request.Context(), params.URL, funcs)
	if err != nil {
		status := http.StatusInternalServerError
		if app.IsFetchError(err) {
			status = http.StatusBadGateway
		}
		s.logger.Error("proxy failed", "url", params.URL, "status", status, "error", err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	var buf bytes.Buffer
	if err := feed.Encode(&buf, out, reflection{Params: params, Funcs: funcs}); err != nil {
		s.logger.Error("encode failed", "url", params.URL, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, feedContentType, buf.Bytes())
}

func (s *Server) handleBreadcrumb(c *gin.Context) {
	key := c.Param("key")

	b, err := s.backend.Breadcrumb(c.Request.Context(), key)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "breadcrumb not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, b)
}
