package types

import (
	"time"
)

// Graph is one generated input graph. The generation-parameter tuple and the
// output file path are both globally unique; processed metrics are filled in
// after the generator has reduced the raw graph.
type Graph struct {
	GraphID            int64   `gorm:"column:graph_id;primaryKey;autoIncrement" json:"graph_id"`
	N                  int32   `gorm:"column:n;not null;uniqueIndex:uq_graphs_params" json:"n"`
	Deg                int32   `gorm:"column:deg;not null;uniqueIndex:uq_graphs_params" json:"deg"`
	Ple                float64 `gorm:"column:ple;not null;default:0;uniqueIndex:uq_graphs_params" json:"ple"`
	Dim                int32   `gorm:"column:dim;not null;default:0;uniqueIndex:uq_graphs_params" json:"dim"`
	Alpha              float64 `gorm:"column:alpha;not null;default:0;uniqueIndex:uq_graphs_params" json:"alpha"`
	Wseed              int32   `gorm:"column:wseed;not null;uniqueIndex:uq_graphs_params" json:"wseed"`
	Pseed              int32   `gorm:"column:pseed;not null;uniqueIndex:uq_graphs_params" json:"pseed"`
	Sseed              int32   `gorm:"column:sseed;not null;uniqueIndex:uq_graphs_params" json:"sseed"`
	ProcessedN         int32   `gorm:"column:processed_n" json:"processed_n"`
	ProcessedAvgDegree float64 `gorm:"column:processed_avg_degree" json:"processed_avg_degree"`
	FilePath           string  `gorm:"column:file_path;not null;uniqueIndex" json:"file_path"`
	Checksum           string  `gorm:"column:checksum;size:64;not null" json:"checksum"`
	CreatedAt          time.Time `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
}

func (Graph) TableName() string { return "graphs" }
