package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wembed/benchcoord/internal/logger"
	"github.com/wembed/benchcoord/internal/repos"
)

type StatusHandler struct {
	log  *logger.Logger
	jobs repos.JobRepo
}

func NewStatusHandler(baseLog *logger.Logger, jobs repos.JobRepo) *StatusHandler {
	return &StatusHandler{
		log:  baseLog.With("handler", "StatusHandler"),
		jobs: jobs,
	}
}

func (h *StatusHandler) JobStats(c *gin.Context) {
	stats, err := h.jobs.Stats(c.Request.Context())
	if err != nil {
		h.log.Error("Job stats query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load job stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

type runningJobView struct {
	Hostname     string `json:"hostname"`
	ClaimedFor   string `json:"claimed_for"`
	EmbeddingDim int32  `json:"embedding_dim"`
	N            int32  `json:"n"`
	GraphID      int64  `json:"graph_id"`
}

func (h *StatusHandler) RunningJobs(c *gin.Context) {
	running, err := h.jobs.Running(c.Request.Context())
	if err != nil {
		h.log.Error("Running jobs query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load running jobs"})
		return
	}
	out := make([]runningJobView, 0, len(running))
	for _, r := range running {
		out = append(out, runningJobView{
			Hostname:     r.Hostname,
			ClaimedFor:   r.ClaimedFor.Round(time.Second).String(),
			EmbeddingDim: r.EmbeddingDim,
			N:            r.N,
			GraphID:      r.GraphID,
		})
	}
	c.JSON(http.StatusOK, gin.H{"running": out})
}
