package types

import (
	"time"
)

// CodeState identifies one version of one data-structure implementation via a
// content checksum, linked to the commit it was built from.
type CodeState struct {
	CodeStateID       int64            `gorm:"column:code_state_id;primaryKey;autoIncrement" json:"code_state_id"`
	RepoStateID       *int64           `gorm:"column:repo_state_id;index" json:"repo_state_id,omitempty"`
	RepositoryState   *RepositoryState `gorm:"constraint:OnDelete:CASCADE;foreignKey:RepoStateID;references:RepoStateID" json:"repository_state,omitempty"`
	Checksum          string           `gorm:"column:checksum;size:64;not null;uniqueIndex:uq_code_states_checksum_name" json:"checksum"`
	DataStructureName string           `gorm:"column:data_structure_name;not null;uniqueIndex:uq_code_states_checksum_name" json:"data_structure_name"`
	CreatedAt         time.Time        `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
}

func (CodeState) TableName() string { return "code_states" }
