package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	cfg Config
	log logx.Logger
}

// Open opens (and migrates) the SQLite database at cfg.Path.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage path is required")
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = reminder.MaxHorizon(reminder.DefaultBuckets())
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	st := &sqliteStore{db: db, cfg: cfg, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const reminderCols = "id, uuid, owner_id, target, payload, created_at, updated_at"

func (s *sqliteStore) Create(ctx context.Context, n NewReminder) (reminder.Reminder, error) {
	now := time.Now()
	r := reminder.Reminder{
		UUID:      uuid.NewString(),
		OwnerID:   n.OwnerID,
		Target:    n.Target,
		Payload:   n.Payload,
		CreatedAt: now,
		Sent:      map[string]bool{},
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return reminder.Reminder{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO reminders(uuid, owner_id, target, payload, created_at) VALUES(?,?,?,?,?)`,
		r.UUID, r.OwnerID, r.Target.UnixMilli(), r.Payload, now.UnixMilli(),
	)
	if err != nil {
		return reminder.Reminder{}, err
	}
	r.ID, err = res.LastInsertId()
	if err != nil {
		return reminder.Reminder{}, err
	}

	for _, bucket := range n.PreMarked {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reminder_sent(reminder_id, bucket, sent_at) VALUES(?,?,?)
			 ON CONFLICT(reminder_id, bucket) DO NOTHING`,
			r.ID, bucket, now.UnixMilli(),
		); err != nil {
			return reminder.Reminder{}, err
		}
		r.Sent[bucket] = true
	}

	if err := tx.Commit(); err != nil {
		return reminder.Reminder{}, err
	}
	s.log.Debug("reminder created",
		logx.Int64("id", r.ID),
		logx.Time("target", r.Target),
		logx.Int("pre_marked", len(n.PreMarked)),
	)
	return r, nil
}

func (s *sqliteStore) ByID(ctx context.Context, id int64) (reminder.Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reminderCols+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return reminder.Reminder{}, ErrNotFound
	}
	if err != nil {
		return reminder.Reminder{}, err
	}
	if r.Sent, err = s.loadSent(ctx, r.ID); err != nil {
		return reminder.Reminder{}, err
	}
	return r, nil
}

func (s *sqliteStore) ListByOwner(ctx context.Context, ownerID int64) ([]reminder.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderCols+` FROM reminders WHERE owner_id = ? ORDER BY target`, ownerID)
	if err != nil {
		return nil, err
	}
	return s.collect(ctx, rows)
}

func (s *sqliteStore) Update(ctx context.Context, id int64, updates []FieldUpdate) error {
	if len(updates) == 0 {
		return errors.New("no fields to update")
	}

	sets := make([]string, 0, len(updates)+1)
	args := make([]any, 0, len(updates)+2)
	for _, u := range updates {
		switch u.Field {
		case FieldTarget:
			sets = append(sets, "target = ?")
			args = append(args, u.Target.UnixMilli())
		case FieldPayload:
			sets = append(sets, "payload = ?")
			args = append(args, u.Payload)
		default:
			return fmt.Errorf("unknown reminder field %d", u.Field)
		}
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UnixMilli(), id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// FetchCandidates over-fetches reminders whose target falls inside
// [ref-1h, ref+horizon]. The subquery skips fully-notified reminders;
// the evaluator independently re-verifies the flags.
func (s *sqliteStore) FetchCandidates(ctx context.Context, ref time.Time) ([]reminder.Reminder, error) {
	lo := ref.Add(-time.Hour).UnixMilli()
	hi := ref.Add(s.cfg.Horizon).UnixMilli()

	q := `SELECT ` + reminderCols + ` FROM reminders r WHERE r.target >= ? AND r.target <= ?`
	args := []any{lo, hi}
	if s.cfg.BucketCount > 0 {
		q += ` AND (SELECT COUNT(*) FROM reminder_sent s WHERE s.reminder_id = r.id) < ?`
		args = append(args, s.cfg.BucketCount)
	}
	q += ` ORDER BY r.target`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return s.collect(ctx, rows)
}

func (s *sqliteStore) MarkBucketSent(ctx context.Context, id int64, bucket string) error {
	if strings.TrimSpace(bucket) == "" {
		return errors.New("bucket name is empty")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminder_sent(reminder_id, bucket, sent_at) VALUES(?,?,?)
		 ON CONFLICT(reminder_id, bucket) DO NOTHING`,
		id, bucket, time.Now().UnixMilli(),
	)
	return err
}

func (s *sqliteStore) collect(ctx context.Context, rows *sql.Rows) ([]reminder.Reminder, error) {
	var out []reminder.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, r)
	}
	// Release the connection before the per-reminder sent queries;
	// the pool is capped at one connection.
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range out {
		sent, err := s.loadSent(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Sent = sent
	}
	return out, nil
}

func (s *sqliteStore) loadSent(ctx context.Context, id int64) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT bucket FROM reminder_sent WHERE reminder_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sent := map[string]bool{}
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		sent[b] = true
	}
	return sent, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReminder(row scanner) (reminder.Reminder, error) {
	var (
		r         reminder.Reminder
		target    int64
		createdAt int64
		updatedAt sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.UUID, &r.OwnerID, &target, &r.Payload, &createdAt, &updatedAt)
	if err != nil {
		return reminder.Reminder{}, err
	}
	r.Target = time.UnixMilli(target)
	r.CreatedAt = time.UnixMilli(createdAt)
	if updatedAt.Valid {
		r.UpdatedAt = time.UnixMilli(updatedAt.Int64)
	}
	return r, nil
}
