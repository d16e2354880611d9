// Package reminder implements the due-reminder pipeline: the window
// evaluator that decides which notification buckets are due, the
// dispatcher that delivers them, and the sweeper that orchestrates one
// fetch -> evaluate -> dispatch -> mark cycle.
package reminder

import "time"

// Reminder is one scheduled event that may trigger notifications.
type Reminder struct {
	ID      int64
	UUID    string
	OwnerID int64 // chat of the user who created it

	// Target is the absolute instant the event is scheduled for.
	Target  time.Time
	Payload string

	// Sent holds the bucket names already notified (or pre-marked as
	// lapsed at creation). Once present, a name never leaves the set.
	Sent map[string]bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r Reminder) BucketSent(name string) bool { return r.Sent[name] }

// AllSent reports whether every given bucket has fired for r.
func (r Reminder) AllSent(buckets []Bucket) bool {
	for _, b := range buckets {
		if !r.Sent[b.Name] {
			return false
		}
	}
	return true
}

// Bucket is a named notification category: a nominal lead time before
// the target instant plus a symmetric tolerance window around it.
type Bucket struct {
	Name      string
	Label     string // human form embedded in messages, e.g. "24 hours"
	Lead      time.Duration
	Tolerance time.Duration
}

// DefaultBuckets returns the built-in 24-hour and 3-hour reminders,
// each with a 30-minute tolerance window.
func DefaultBuckets() []Bucket {
	return []Bucket{
		{Name: "24h", Label: "24 hours", Lead: 24 * time.Hour, Tolerance: 30 * time.Minute},
		{Name: "3h", Label: "3 hours", Lead: 3 * time.Hour, Tolerance: 30 * time.Minute},
	}
}

// MaxHorizon returns the largest lead+tolerance across buckets; the
// store uses it to bound the candidate fetch window.
func MaxHorizon(buckets []Bucket) time.Duration {
	var max time.Duration
	for _, b := range buckets {
		if h := b.Lead + b.Tolerance; h > max {
			max = h
		}
	}
	return max
}
