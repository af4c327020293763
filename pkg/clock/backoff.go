package clock

import "time"

// Backoff bounds per spec §4.2.
const (
	MinBackoffMS = 1000
	MaxBackoffMS = 3_600_000
)

// Backoff computes the retry delay for a 1-indexed attempt number:
// min(MinBackoffMS * 2^(attempt-1), MaxBackoffMS). Attempts less than
// 1 are treated as 1.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	// Cap the shift so 2^(attempt-1) never overflows before the min()
	// clamps it back down to MaxBackoffMS.
	shift := attempt - 1
	const maxShift = 31 // 2^31 * MinBackoffMS already exceeds MaxBackoffMS many times over
	if shift > maxShift {
		shift = maxShift
	}

	ms := int64(MinBackoffMS) << uint(shift)
	if ms > MaxBackoffMS || ms < 0 {
		ms = MaxBackoffMS
	}

	return time.Duration(ms) * time.Millisecond
}
