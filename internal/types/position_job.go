package types

import (
	"time"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// PositionJob is one unit of embedding work. claimed_by_hostname and
// claimed_at are set together on claim and cleared together on stale recovery.
type PositionJob struct {
	JobID             int64      `gorm:"column:job_id;primaryKey;autoIncrement" json:"job_id"`
	GraphID           int64      `gorm:"column:graph_id;not null;uniqueIndex:uq_position_jobs_params" json:"graph_id"`
	Graph             *Graph     `gorm:"constraint:OnDelete:CASCADE;foreignKey:GraphID;references:GraphID" json:"graph,omitempty"`
	EmbeddingDim      int32      `gorm:"column:embedding_dim;not null;uniqueIndex:uq_position_jobs_params" json:"embedding_dim"`
	DimHint           int32      `gorm:"column:dim_hint;not null;uniqueIndex:uq_position_jobs_params" json:"dim_hint"`
	MaxIterations     int32      `gorm:"column:max_iterations;not null;uniqueIndex:uq_position_jobs_params" json:"max_iterations"`
	Seed              int32      `gorm:"column:seed;not null;uniqueIndex:uq_position_jobs_params" json:"seed"`
	Status            string     `gorm:"column:status;not null;default:'pending';index" json:"status"`
	ClaimedByHostname *string    `gorm:"column:claimed_by_hostname" json:"claimed_by_hostname,omitempty"`
	ClaimedAt         *time.Time `gorm:"column:claimed_at" json:"claimed_at,omitempty"`
	CompletedAt       *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	ErrorMessage      *string    `gorm:"column:error_message" json:"error_message,omitempty"`
	CreatedAt         time.Time  `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
}

func (PositionJob) TableName() string { return "position_jobs" }
