package types

import (
	"time"
)

// CorrectnessTest is the 1:1 correctness-check artifact for a result.
// result_id is both primary key and foreign key.
type CorrectnessTest struct {
	ResultID  int64           `gorm:"column:result_id;primaryKey" json:"result_id"`
	Result    *PositionResult `gorm:"constraint:OnDelete:CASCADE;foreignKey:ResultID;references:ResultID" json:"result,omitempty"`
	FilePath  string          `gorm:"column:file_path;not null" json:"file_path"`
	CreatedAt time.Time       `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
}

func (CorrectnessTest) TableName() string { return "tests" }
