package upload

import (
	"math"
	"time"
)

const bytesPerMB = 1 << 20

// calculateUploadTime returns how long a tick should wait before
// abandoning stragglers, given bytes already in flight from a prior tick
// and bytes newly dispatched this tick, a reference upload speed in
// MB/s, and the per-disk thread count.
//
// Bytes already in flight and newly dispatched bytes are weighted
// differently: a straggler from a previous tick only needs its remaining
// share of the thread budget, while this tick's own bytes are budgeted
// at twice that rate so a burst of small batches doesn't get starved by
// the 2-second floor applied per term. Non-forced ticks floor at 2s;
// forced ticks clamp to [1, maxForceUploadExpireTimeS].
func calculateUploadTime(inFlightBytes, newBytes int64, referenceUploadSpeedMBS float64, threadNum int, forced bool, maxForceUploadExpireTimeS int64) time.Duration {
	threadBudget := referenceUploadSpeedMBS * float64(threadNum)

	inFlightTerm := math.Ceil(float64(inFlightBytes) / bytesPerMB / threadBudget)
	newTerm := math.Ceil(float64(newBytes) / bytesPerMB / threadBudget)

	raw := inFlightTerm + 2*newTerm

	var seconds float64

	switch {
	case forced:
		seconds = raw
		if seconds > float64(maxForceUploadExpireTimeS) {
			seconds = float64(maxForceUploadExpireTimeS)
		}

		if seconds < 1 {
			seconds = 1
		}
	default:
		seconds = raw
		if seconds < 2 {
			seconds = 2
		}
	}

	return time.Duration(seconds * float64(time.Second))
}
