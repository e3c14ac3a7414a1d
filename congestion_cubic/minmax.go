package congestion_cubic

import (
	"time"

	"golang.org/x/exp/constraints"
)

func maxOf[T constraints.Ordered](a, b T) T {
	if a < b {
		return b
	}
	return a
}

func minOf[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func clamp[T constraints.Ordered](value, lo, hi T) T {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

func maxDuration(a, b time.Duration) time.Duration {
	return maxOf(a, b)
}
