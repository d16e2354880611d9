package reminder

import "time"

// DueBuckets classifies r against ref and returns, in definition order,
// the buckets currently due: sent flag still false and the remaining
// time to target inside [lead-tolerance, lead+tolerance].
//
// The comparison is a real-valued duration, not truncated to hours or
// days; tolerance windows are sub-hour and the sweep runs on an
// irregular interval, so integer math would skip windows.
//
// Pure function: no I/O, no clock access.
func DueBuckets(r Reminder, ref time.Time, buckets []Bucket) []Bucket {
	until := r.Target.Sub(ref)
	var due []Bucket
	for _, b := range buckets {
		if r.BucketSent(b.Name) {
			// The sent flag, not window exit, is what prevents a
			// duplicate notification on later ticks.
			continue
		}
		if until >= b.Lead-b.Tolerance && until <= b.Lead+b.Tolerance {
			due = append(due, b)
		}
	}
	return due
}

// LapsedBuckets returns the names of buckets whose window is already
// unreachable for a reminder targeting target as of now: the remaining
// time is below lead-tolerance, so the bucket can never fire inside its
// proper window. The creation and update paths pre-mark these so a late
// created reminder is never notified late.
func LapsedBuckets(target, now time.Time, buckets []Bucket) []string {
	until := target.Sub(now)
	var out []string
	for _, b := range buckets {
		if until < b.Lead-b.Tolerance {
			out = append(out, b.Name)
		}
	}
	return out
}
