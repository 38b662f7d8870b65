package worker

import (
	"math"
	"time"
)

// PerfSample is one raw benchmark observation: wall time plus hardware counter
// readings for the measured region.
type PerfSample struct {
	WallTime     time.Duration
	Instructions float64
	Cycles       float64
}

// PerfStats is the aggregate the measurement store persists. Wall times stay
// integer nanoseconds; counter statistics stay floating point because the
// samples are themselves averages.
type PerfStats struct {
	SampleCount            int32
	WallTimeMean           time.Duration
	WallTimeStddev         time.Duration
	InstructionCountMean   float64
	InstructionCountStddev float64
	CyclesMean             float64
	CyclesStddev           float64
}

// AggregateSamples computes population mean and standard deviation over the
// samples. An empty slice yields the zero value.
func AggregateSamples(samples []PerfSample) PerfStats {
	if len(samples) == 0 {
		return PerfStats{}
	}
	count := float64(len(samples))

	var wallSum, insSum, cycSum float64
	for _, s := range samples {
		wallSum += float64(s.WallTime.Nanoseconds())
		insSum += s.Instructions
		cycSum += s.Cycles
	}
	wallMean := wallSum / count
	insMean := insSum / count
	cycMean := cycSum / count

	var wallVar, insVar, cycVar float64
	for _, s := range samples {
		d := float64(s.WallTime.Nanoseconds()) - wallMean
		wallVar += d * d
		d = s.Instructions - insMean
		insVar += d * d
		d = s.Cycles - cycMean
		cycVar += d * d
	}
	wallVar /= count
	insVar /= count
	cycVar /= count

	return PerfStats{
		SampleCount:            int32(len(samples)),
		WallTimeMean:           time.Duration(wallMean),
		WallTimeStddev:         time.Duration(math.Sqrt(wallVar)),
		InstructionCountMean:   insMean,
		InstructionCountStddev: math.Sqrt(insVar),
		CyclesMean:             cycMean,
		CyclesStddev:           math.Sqrt(cycVar),
	}
}
