package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	logx "remindbot/pkg/logx"
)

// Store is the persistence surface the sweeper needs. The full CRUD
// interface lives in internal/storage; the sweep only reads candidates
// and flips sent flags.
type Store interface {
	// FetchCandidates returns reminders that could plausibly have a due
	// bucket around ref. Over-fetching is fine; DueBuckets does the
	// precise check.
	FetchCandidates(ctx context.Context, ref time.Time) ([]Reminder, error)

	// MarkBucketSent idempotently records that bucket fired for id.
	// A repeated call for the same pair must succeed and change nothing.
	MarkBucketSent(ctx context.Context, id int64, bucket string) error
}

// Pair error stages.
const (
	StageDispatch = "dispatch"
	StageMark     = "mark"
)

// PairError reports one failed (reminder, bucket) pair. Stage "mark"
// means the message went out but recording it failed, so the next sweep
// may send a duplicate.
type PairError struct {
	ReminderID int64  `json:"id"`
	Bucket     string `json:"bucket"`
	Stage      string `json:"stage"`
	Reason     string `json:"reason"`
}

// Summary aggregates one sweep. Per-pair failures live in Errors and
// never abort the sweep; Success is false only when the candidate fetch
// itself failed.
type Summary struct {
	Success    bool        `json:"success"`
	Candidates int         `json:"total_processed"`
	Attempted  int         `json:"buckets_attempted"`
	Sent       int         `json:"reminders_sent"`
	Errors     []PairError `json:"errors,omitempty"`
	Ref        time.Time   `json:"ref"`
}

// Sweeper runs one fetch -> evaluate -> dispatch -> mark cycle per Run
// call. Runs are serialized internally so the cron trigger and the HTTP
// trigger cannot interleave marks for the same pair; the idempotent
// MarkBucketSent is the second line of defense.
//
// No state survives between runs beyond the sent flags in the store, so
// a sweep is restart-safe and immediately re-runnable.
type Sweeper struct {
	mu      sync.Mutex
	store   Store
	disp    *Dispatcher
	buckets []Bucket
	now     func() time.Time
	log     logx.Logger
}

func NewSweeper(store Store, disp *Dispatcher, buckets []Bucket, log logx.Logger) *Sweeper {
	if len(buckets) == 0 {
		buckets = DefaultBuckets()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sweeper{
		store:   store,
		disp:    disp,
		buckets: buckets,
		now:     time.Now,
		log:     log,
	}
}

// SetClock overrides the reference-instant source. Test hook.
func (s *Sweeper) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Sweeper) Buckets() []Bucket { return s.buckets }

// Run executes one sweep. The returned error is non-nil only for the
// fetch step; everything after that is isolated per pair and reported
// through the Summary.
func (s *Sweeper) Run(ctx context.Context) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := s.now()
	sum := Summary{Ref: ref}

	cands, err := s.store.FetchCandidates(ctx, ref)
	if err != nil {
		s.log.Error("candidate fetch failed, aborting sweep", logx.Err(err))
		return sum, fmt.Errorf("fetch candidates: %w", err)
	}
	sum.Success = true
	sum.Candidates = len(cands)

	for _, r := range cands {
		for _, b := range DueBuckets(r, ref, s.buckets) {
			sum.Attempted++

			if err := s.disp.Dispatch(ctx, r, b); err != nil {
				sum.Errors = append(sum.Errors, PairError{
					ReminderID: r.ID, Bucket: b.Name, Stage: StageDispatch, Reason: err.Error(),
				})
				s.log.Warn("reminder dispatch failed",
					logx.Int64("id", r.ID), logx.String("bucket", b.Name), logx.Err(err))
				continue
			}

			if err := s.store.MarkBucketSent(ctx, r.ID, b.Name); err != nil {
				// The message is already out; an unmarked flag risks a
				// duplicate on the next sweep, hence the higher severity.
				sum.Errors = append(sum.Errors, PairError{
					ReminderID: r.ID, Bucket: b.Name, Stage: StageMark, Reason: err.Error(),
				})
				s.log.Error("mark-sent failed after successful dispatch",
					logx.Int64("id", r.ID), logx.String("bucket", b.Name), logx.Err(err))
				continue
			}

			sum.Sent++
		}
	}

	s.log.Info("sweep finished",
		logx.Int("candidates", sum.Candidates),
		logx.Int("attempted", sum.Attempted),
		logx.Int("sent", sum.Sent),
		logx.Int("errors", len(sum.Errors)),
	)
	return sum, nil
}
