package types

import (
	"time"
)

// RepositoryState is a source-control commit snapshot.
type RepositoryState struct {
	RepoStateID   int64     `gorm:"column:repo_state_id;primaryKey;autoIncrement" json:"repo_state_id"`
	CommitHash    string    `gorm:"column:commit_hash;size:40;not null;uniqueIndex" json:"commit_hash"`
	Timestamp     time.Time `gorm:"column:timestamp;not null" json:"timestamp"`
	CommitMessage string    `gorm:"column:commit_message;not null" json:"commit_message"`
	CreatedAt     time.Time `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
}

func (RepositoryState) TableName() string { return "repository_states" }
