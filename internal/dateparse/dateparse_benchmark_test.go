package dateparse

import (
	"testing"
	"time"
)

// Reference time for benchmarks (a Wednesday)
var benchTime = time.Date(2024, 6, 12, 10, 30, 0, 0, time.UTC)

func BenchmarkWeekOffset(b *testing.B) {
	for _, input := range []string{"next week", "friday", "in 3 weeks", "2024-07-01", "unknown"} {
		b.Run(input, func(b *testing.B) {
			for b.Loop() {
				_, _ = WeekOffset(input, benchTime)
			}
		})
	}
}
