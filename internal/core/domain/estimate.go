package domain

import (
	"fmt"
	"math"
)

// RuntimeEstimate is the result of one battery runtime estimation run.
type RuntimeEstimate struct {
	ElapsedSeconds          float64
	AveragePowerWatts       float64
	EstimatedRuntimeSeconds float64
	CapacityKWh             float64
	BaselinePercentage      float64
	FinalPercentage         float64
	Samples                 int
}

func (e RuntimeEstimate) String() string {
	return fmt.Sprintf("average power %.1f W consumes 1%% of battery in %s, estimated runtime %s, battery capacity %.2f kWh",
		e.AveragePowerWatts, HumanDuration(e.ElapsedSeconds), HumanDuration(e.EstimatedRuntimeSeconds), e.CapacityKWh)
}

// HumanDuration formats seconds as HH:MM:SS.
func HumanDuration(seconds float64) string {
	neg := seconds < 0
	s := int64(math.Abs(seconds))
	out := fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
	if neg {
		return "-" + out
	}
	return out
}
