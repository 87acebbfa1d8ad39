package dict

import "math"

// oldThreshold is the sample count after which an average stops favouring
// recent samples more heavily than its configured weight.
const oldThreshold = 100

// paddedAverage is an exponentially weighted average that also tracks the
// average deviation and exposes average + padding*deviation.
type paddedAverage struct {
	average     float64
	sampleCount uint32
	weight      uint32
	isOld       bool
	lastSample  float64
	padding     float64
	paddedAvg   float64
	deviation   float64
}

func newPaddedAverage(weight uint32, padding float64) paddedAverage {
	return paddedAverage{weight: weight, padding: padding}
}

func (a *paddedAverage) sample(v float64) {
	a.sampleCount++
	if !a.isOld && a.sampleCount > oldThreshold {
		a.isOld = true
	}
	a.average = a.adaptive(v, a.average)
	a.lastSample = v
	a.deviation = a.adaptive(math.Abs(v-a.average), a.deviation)
	a.paddedAvg = a.average + a.padding*a.deviation
}

// adaptive folds v into avg. Young averages weigh new samples by at least
// 1/sampleCount so that the first samples are not drowned by the zero start.
func (a *paddedAverage) adaptive(v, avg float64) float64 {
	w := a.weight
	if !a.isOld {
		if cw := oldThreshold / a.sampleCount; cw > w {
			w = cw
		}
	}
	return (float64(100-w)*avg + float64(w)*v) / 100
}
