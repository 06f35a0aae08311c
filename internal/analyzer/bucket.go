package analyzer

import "time"

// clipIntervals clips every interval to [r.Start, r.End), dropping any
// that fall entirely outside the range (spec.md §4.6 step 2).
func clipIntervals(intervals []interval, r Range) []interval {
	out := make([]interval, 0, len(intervals))
	for _, iv := range intervals {
		start := maxTime(iv.start, r.Start)
		end := minTime(iv.end, r.End)
		if !start.Before(end) {
			continue
		}
		clipped := iv
		clipped.start = start
		clipped.end = end
		out = append(out, clipped)
	}
	return out
}

// splitIntoBuckets assigns each (already-clipped) interval to every
// bucket its span touches, splitting at hourly or daily local-time floors
// (spec.md §4.6 step 3). A piece handed to a given bucket still carries
// its original start/end; sweepBucket clips it to the bucket window.
func splitIntoBuckets(intervals []interval, hourly bool) map[time.Time][]interval {
	out := map[time.Time][]interval{}
	step := bucketDuration(hourly)

	for _, iv := range intervals {
		cursor := floorTo(iv.start, hourly)
		for cursor.Before(iv.end) {
			out[cursor] = append(out[cursor], iv)
			cursor = cursor.Add(step)
		}
	}
	return out
}

func floorTo(t time.Time, hourly bool) time.Time {
	t = t.Local()
	if hourly {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
