package types

import (
	"time"
)

// PositionResult is a completed embedding output. It carries the same
// parameter tuple as the job that produced it and is append-only: rows are
// never updated once written.
type PositionResult struct {
	ResultID         int64     `gorm:"column:result_id;primaryKey;autoIncrement" json:"result_id"`
	GraphID          int64     `gorm:"column:graph_id;not null;uniqueIndex:uq_position_results_params" json:"graph_id"`
	Graph            *Graph    `gorm:"constraint:OnDelete:CASCADE;foreignKey:GraphID;references:GraphID" json:"graph,omitempty"`
	EmbeddingDim     int32     `gorm:"column:embedding_dim;not null;uniqueIndex:uq_position_results_params" json:"embedding_dim"`
	DimHint          int32     `gorm:"column:dim_hint;not null;uniqueIndex:uq_position_results_params" json:"dim_hint"`
	MaxIterations    int32     `gorm:"column:max_iterations;not null;uniqueIndex:uq_position_results_params" json:"max_iterations"`
	ActualIterations *int32    `gorm:"column:actual_iterations" json:"actual_iterations,omitempty"`
	Seed             int32     `gorm:"column:seed;not null;uniqueIndex:uq_position_results_params" json:"seed"`
	FilePath         string    `gorm:"column:file_path;not null" json:"file_path"`
	Checksum         string    `gorm:"column:checksum;size:64;not null" json:"checksum"`
	CreatedAt        time.Time `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
}

func (PositionResult) TableName() string { return "position_results" }
