package trainer

import "math"

// A GammaRater implements anysgd.Rater with stepwise
// exponential decay: the rate is
// Initial * Gamma^(floor(epoch)/StepSize), using integer
// division as the step function.
type GammaRater struct {
	Initial  float64
	Gamma    float64
	StepSize int
}

// Rate returns the learning rate for the epoch.
func (g *GammaRater) Rate(epoch float64) float64 {
	step := 0
	if g.StepSize > 0 {
		step = int(epoch) / g.StepSize
	}
	return g.Initial * math.Pow(g.Gamma, float64(step))
}
