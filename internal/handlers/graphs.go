package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wembed/benchcoord/internal/logger"
	"github.com/wembed/benchcoord/internal/repos"
	"github.com/wembed/benchcoord/internal/storeerr"
)

// EnqueuePolicy is the job fan-out applied when a graph is finalized: one job
// per embedding dimension.
type EnqueuePolicy struct {
	Dimensions    []int
	MaxIterations int32
	Seed          int32
}

type GraphHandler struct {
	log     *logger.Logger
	graphs  repos.GraphRepo
	jobs    repos.JobRepo
	results repos.ResultRepo
	tests   repos.TestRepo
	policy  EnqueuePolicy
}

func NewGraphHandler(baseLog *logger.Logger, graphs repos.GraphRepo, jobs repos.JobRepo, results repos.ResultRepo, tests repos.TestRepo, policy EnqueuePolicy) *GraphHandler {
	return &GraphHandler{
		log:     baseLog.With("handler", "GraphHandler"),
		graphs:  graphs,
		jobs:    jobs,
		results: results,
		tests:   tests,
		policy:  policy,
	}
}

type registerGraphRequest struct {
	N     int32   `json:"n"`
	Deg   int32   `json:"deg"`
	Ple   float64 `json:"ple"`
	Dim   int32   `json:"dim"`
	Alpha float64 `json:"alpha"`
	Wseed int32   `json:"wseed"`
	Pseed int32   `json:"pseed"`
	Sseed int32   `json:"sseed"`
}

// Register reserves a graph row for a generation-parameter tuple. The caller
// generates the file afterwards and reports it via Finalize.
func (h *GraphHandler) Register(c *gin.Context) {
	var req registerGraphRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	graph, err := h.graphs.Create(c.Request.Context(), nil, repos.GraphParams{
		N: req.N, Deg: req.Deg, Ple: req.Ple, Dim: req.Dim, Alpha: req.Alpha,
		Wseed: req.Wseed, Pseed: req.Pseed, Sseed: req.Sseed,
	})
	if err != nil {
		switch {
		case storeerr.IsDuplicateKey(err):
			c.JSON(http.StatusConflict, gin.H{"error": "graph params already registered"})
		case storeerr.IsInvalidState(err):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.log.Error("Graph registration failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not register graph"})
		}
		return
	}
	c.JSON(http.StatusCreated, graph)
}

type finalizeGraphRequest struct {
	FilePath           string  `json:"file_path"`
	Checksum           string  `json:"checksum"`
	ProcessedN         int32   `json:"processed_n"`
	ProcessedAvgDegree float64 `json:"processed_avg_degree"`
}

// Finalize records the generated file for a graph and fans the embedding jobs
// out across the configured dimension list.
func (h *GraphHandler) Finalize(c *gin.Context) {
	graphID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid graph id"})
		return
	}
	var req finalizeGraphRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.FilePath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ctx := c.Request.Context()
	if err := h.graphs.Finalize(ctx, nil, graphID, req.FilePath, req.Checksum, req.ProcessedN, req.ProcessedAvgDegree); err != nil {
		switch {
		case storeerr.IsNotFound(err):
			c.JSON(http.StatusNotFound, gin.H{"error": "graph not found"})
		case storeerr.IsDuplicateKey(err):
			c.JSON(http.StatusConflict, gin.H{"error": "file path already registered"})
		case storeerr.IsInvalidState(err):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.log.Error("Graph finalize failed", "graph_id", graphID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not finalize graph"})
		}
		return
	}
	enqueued, err := h.jobs.EnqueueForGraph(ctx, nil, graphID, h.policy.Dimensions, h.policy.MaxIterations, h.policy.Seed)
	if err != nil {
		h.log.Error("Job fan-out failed", "graph_id", graphID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "graph finalized but job fan-out failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"graph_id": graphID, "jobs_enqueued": enqueued})
}

type graphResultView struct {
	ResultID         int64   `json:"result_id"`
	EmbeddingDim     int32   `json:"embedding_dim"`
	DimHint          int32   `json:"dim_hint"`
	MaxIterations    int32   `json:"max_iterations"`
	ActualIterations *int32  `json:"actual_iterations,omitempty"`
	Seed             int32   `json:"seed"`
	FilePath         string  `json:"file_path"`
	Checksum         string  `json:"checksum"`
	TestFilePath     *string `json:"test_file_path,omitempty"`
}

// Results lists a graph's embedding results with their correctness-test
// artifacts, lowest dimension first.
func (h *GraphHandler) Results(c *gin.Context) {
	graphID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid graph id"})
		return
	}
	ctx := c.Request.Context()
	if _, err := h.graphs.GetByID(ctx, nil, graphID); err != nil {
		if storeerr.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "graph not found"})
			return
		}
		h.log.Error("Graph lookup failed", "graph_id", graphID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load graph"})
		return
	}
	results, err := h.results.ListForGraph(ctx, nil, graphID)
	if err != nil {
		h.log.Error("Result listing failed", "graph_id", graphID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load results"})
		return
	}
	out := make([]graphResultView, 0, len(results))
	for _, r := range results {
		view := graphResultView{
			ResultID:         r.ResultID,
			EmbeddingDim:     r.EmbeddingDim,
			DimHint:          r.DimHint,
			MaxIterations:    r.MaxIterations,
			ActualIterations: r.ActualIterations,
			Seed:             r.Seed,
			FilePath:         r.FilePath,
			Checksum:         r.Checksum,
		}
		if test, testErr := h.tests.Get(ctx, nil, r.ResultID); testErr == nil {
			view.TestFilePath = &test.FilePath
		}
		out = append(out, view)
	}
	c.JSON(http.StatusOK, gin.H{"graph_id": graphID, "results": out})
}
