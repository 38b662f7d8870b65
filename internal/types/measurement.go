package types

import (
	"time"
)

const (
	BenchmarkConstruction = "construction"
	BenchmarkSparseQuery  = "sparse_query"
	BenchmarkLightNodes   = "light_nodes"
	BenchmarkHeavyNodes   = "heavy_nodes"
)

// BenchmarkTypes lists every valid benchmark_type value.
func BenchmarkTypes() []string {
	return []string{BenchmarkConstruction, BenchmarkSparseQuery, BenchmarkLightNodes, BenchmarkHeavyNodes}
}

// Measurement is one benchmark iteration's performance sample. Wall times are
// integer nanoseconds; instruction and cycle counts come from averaged
// hardware-counter samples and stay floating point.
type Measurement struct {
	MeasurementID          int64           `gorm:"column:measurement_id;primaryKey;autoIncrement" json:"measurement_id"`
	CodeStateID            int64           `gorm:"column:code_state_id;not null;uniqueIndex:uq_measurements_key" json:"code_state_id"`
	CodeState              *CodeState      `gorm:"constraint:OnDelete:CASCADE;foreignKey:CodeStateID;references:CodeStateID" json:"code_state,omitempty"`
	ResultID               int64           `gorm:"column:result_id;not null;uniqueIndex:uq_measurements_key" json:"result_id"`
	Result                 *PositionResult `gorm:"constraint:OnDelete:CASCADE;foreignKey:ResultID;references:ResultID" json:"result,omitempty"`
	IterationNumber        int32           `gorm:"column:iteration_number;not null;uniqueIndex:uq_measurements_key" json:"iteration_number"`
	SampleCount            int32           `gorm:"column:sample_count;not null" json:"sample_count"`
	Hostname               string          `gorm:"column:hostname;not null;uniqueIndex:uq_measurements_key" json:"hostname"`
	Architecture           string          `gorm:"column:architecture;not null" json:"architecture"`
	BenchmarkType          string          `gorm:"column:benchmark_type;not null;uniqueIndex:uq_measurements_key" json:"benchmark_type"`
	WallTimeMean           int64           `gorm:"column:wall_time_mean;not null" json:"wall_time_mean"`
	WallTimeStddev         int64           `gorm:"column:wall_time_stddev;not null" json:"wall_time_stddev"`
	InstructionCountMean   float64         `gorm:"column:instruction_count_mean;not null" json:"instruction_count_mean"`
	InstructionCountStddev float64         `gorm:"column:instruction_count_stddev;not null" json:"instruction_count_stddev"`
	CyclesMean             float64         `gorm:"column:cycles_mean;not null" json:"cycles_mean"`
	CyclesStddev           float64         `gorm:"column:cycles_stddev;not null" json:"cycles_stddev"`
	CreatedAt              time.Time       `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
}

func (Measurement) TableName() string { return "measurements" }
