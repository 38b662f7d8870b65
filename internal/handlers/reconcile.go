package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wembed/benchcoord/internal/config"
	"github.com/wembed/benchcoord/internal/logger"
	"github.com/wembed/benchcoord/internal/repos"
)

type ReconcileHandler struct {
	log          *logger.Logger
	measurements repos.MeasurementRepo
	pairs        []config.HostPair
}

func NewReconcileHandler(baseLog *logger.Logger, measurements repos.MeasurementRepo, pairs []config.HostPair) *ReconcileHandler {
	return &ReconcileHandler{
		log:          baseLog.With("handler", "ReconcileHandler"),
		measurements: measurements,
		pairs:        pairs,
	}
}

type reconcileResult struct {
	HostA      string `json:"host_a"`
	HostB      string `json:"host_b"`
	CopiedAtoB int64  `json:"copied_a_to_b"`
	CopiedBtoA int64  `json:"copied_b_to_a"`
}

// Trigger runs the configured host pairs. Which hosts reconcile with which is
// deployment configuration, not policy baked in here.
func (h *ReconcileHandler) Trigger(c *gin.Context) {
	if len(h.pairs) == 0 {
		c.JSON(http.StatusOK, gin.H{"results": []reconcileResult{}, "note": "no reconcile pairs configured"})
		return
	}
	results := make([]reconcileResult, 0, len(h.pairs))
	for _, pair := range h.pairs {
		aToB, bToA, err := h.measurements.Reconcile(c.Request.Context(), pair.A, pair.B)
		if err != nil {
			h.log.Error("Reconcile failed", "host_a", pair.A, "host_b", pair.B, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "reconcile failed", "host_a": pair.A, "host_b": pair.B})
			return
		}
		results = append(results, reconcileResult{
			HostA:      pair.A,
			HostB:      pair.B,
			CopiedAtoB: aToB,
			CopiedBtoA: bToA,
		})
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
