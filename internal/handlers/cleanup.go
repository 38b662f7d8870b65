package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wembed/benchcoord/internal/cleanup"
	"github.com/wembed/benchcoord/internal/logger"
)

type CleanupHandler struct {
	log     *logger.Logger
	sweeper *cleanup.Sweeper
	dataDir string
}

func NewCleanupHandler(baseLog *logger.Logger, sweeper *cleanup.Sweeper, dataDir string) *CleanupHandler {
	return &CleanupHandler{
		log:     baseLog.With("handler", "CleanupHandler"),
		sweeper: sweeper,
		dataDir: dataDir,
	}
}

// Sweep reports orphaned artifact files. Deletion only happens with the
// explicit delete=true query parameter; the default is a dry run.
func (h *CleanupHandler) Sweep(c *gin.Context) {
	dryRun := c.Query("delete") != "true"
	report, err := h.sweeper.Sweep(c.Request.Context(), h.dataDir, dryRun)
	if err != nil {
		h.log.Error("Cleanup sweep failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cleanup sweep failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"dry_run":          dryRun,
		"scanned_files":    report.ScannedFiles,
		"referenced_files": report.ReferencedFiles,
		"orphaned":         report.Orphaned,
		"deleted":          report.Deleted,
		"failed_deletes":   report.FailedDeletes,
	})
}
