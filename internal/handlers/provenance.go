package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wembed/benchcoord/internal/logger"
	"github.com/wembed/benchcoord/internal/repos"
)

type ProvenanceHandler struct {
	log  *logger.Logger
	view repos.ProvenanceViewRepo
}

func NewProvenanceHandler(baseLog *logger.Logger, view repos.ProvenanceViewRepo) *ProvenanceHandler {
	return &ProvenanceHandler{
		log:  baseLog.With("handler", "ProvenanceHandler"),
		view: view,
	}
}

func (h *ProvenanceHandler) List(c *gin.Context) {
	filter := repos.ProvenanceFilter{
		DataStructureName: c.Query("data_structure"),
		Hostname:          c.Query("hostname"),
		BenchmarkType:     c.Query("benchmark_type"),
		OnlyNewest:        c.Query("only_newest") == "true",
		OnlyLastIteration: c.Query("only_last_iteration") == "true",
	}
	rows, err := h.view.List(c.Request.Context(), nil, filter)
	if err != nil {
		h.log.Error("Provenance view query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load provenance view"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}
