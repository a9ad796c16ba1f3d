// Package postgres implements the Delegate port against PostgreSQL via
// pgx/v5. Row-level mutual exclusion for the store-backed lock
// (internal/lock.StoreBacked) rides on plain `SELECT... FOR UPDATE` inside
// the caller's transaction, and duplicate-key violations are translated to
// model.ErrObjectAlreadyExists by matching pgconn.PgError code 23505.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coreclock/jobstore/internal/delegate"
	"github.com/coreclock/jobstore/internal/key"
	"github.com/coreclock/jobstore/internal/model"
)

const uniqueViolation = "23505"

// Store is the relational Delegate implementation.
type Store struct {
	pool *pgxpool.Pool
	schedulerName string
	isolationLevel pgx.TxIsoLevel
}

// IsolationLevel selects the transaction isolation the store opens.
type IsolationLevel int

const (
	ReadCommitted IsolationLevel = iota
	Serializable
)

func New(pool *pgxpool.Pool, schedulerName string, isolation IsolationLevel) *Store {
	level := pgx.ReadCommitted
	if isolation == Serializable {
		level = pgx.Serializable
	}
	return &Store{pool: pool, schedulerName: schedulerName, isolationLevel: level}
}

// EnsureSchema applies schemaDDL; call once at startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaDDL)
	if err != nil {
		return fmt.Errorf("%w: apply schema: %v", model.ErrPersistence, err)
	}
	return nil
}

var _ delegate.Delegate = (*Store)(nil)

func txOf(tx delegate.Tx) pgx.Tx { return tx.(pgx.Tx) }

func (s *Store) Begin(ctx context.Context) (delegate.Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: s.isolationLevel})
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", model.ErrPersistence, err)
	}
	return tx, nil
}

func (s *Store) Commit(ctx context.Context, tx delegate.Tx) error {
	if err := txOf(tx).Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", model.ErrPersistence, err)
	}
	return nil
}

func (s *Store) Rollback(ctx context.Context, tx delegate.Tx) error {
	err := txOf(tx).Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("%w: rollback: %v", model.ErrPersistence, err)
	}
	return nil
}

// ObtainLock upserts then SELECT... FOR UPDATEs the lock row. Unlike a
// work-queue dequeue this intentionally omits SKIP LOCKED: contention on
// the row must block, not skip to a different row.
func (s *Store) ObtainLock(ctx context.Context, tx delegate.Tx, schedulerName, lockName, _ string) error {
	t := txOf(tx)
	_, err := t.Exec(ctx, `INSERT INTO js_locks (scheduler_name, lock_name) VALUES ($1,$2) ON CONFLICT DO NOTHING`, schedulerName, lockName)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrLockUnavailable, err)
	}
	var discard string
	err = t.QueryRow(ctx, `SELECT lock_name FROM js_locks WHERE scheduler_name=$1 AND lock_name=$2 FOR UPDATE`, schedulerName, lockName).Scan(&discard)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrLockUnavailable, err)
	}
	return nil
}

func asDup(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %v", model.ErrObjectAlreadyExists, err)
	}
	return err
}

// --- Existence / detail queries ---------------------------------------------

func (s *Store) JobExists(ctx context.Context, tx delegate.Tx, k key.JobKey) (bool, error) {
	var n int
	err := txOf(tx).QueryRow(ctx, `SELECT 1 FROM js_jobs WHERE scheduler_name=$1 AND job_group=$2 AND job_name=$3`,
		s.schedulerName, k.Group, k.Name).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, ignoreNoRows(err)
}

func (s *Store) TriggerExists(ctx context.Context, tx delegate.Tx, k key.TriggerKey) (bool, error) {
	var n int
	err := txOf(tx).QueryRow(ctx, `SELECT 1 FROM js_triggers WHERE scheduler_name=$1 AND trigger_group=$2 AND trigger_name=$3`,
		s.schedulerName, k.Group, k.Name).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, ignoreNoRows(err)
}

func (s *Store) CalendarExists(ctx context.Context, tx delegate.Tx, name string) (bool, error) {
	var n int
	err := txOf(tx).QueryRow(ctx, `SELECT 1 FROM js_calendars WHERE scheduler_name=$1 AND calendar_name=$2`, s.schedulerName, name).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, ignoreNoRows(err)
}

func (s *Store) CalendarIsReferenced(ctx context.Context, tx delegate.Tx, name string) (bool, error) {
	var n int
	err := txOf(tx).QueryRow(ctx, `SELECT 1 FROM js_triggers WHERE scheduler_name=$1 AND calendar_name=$2 LIMIT 1`, s.schedulerName, name).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, ignoreNoRows(err)
}

func ignoreNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}

func (s *Store) SelectJobDetail(ctx context.Context, tx delegate.Tx, k key.JobKey) (*model.Job, error) {
	row := txOf(tx).QueryRow(ctx, `SELECT job_group, job_name, job_type, job_data, description,
 concurrent_exec_disallowed, persist_job_data, durable, requests_recovery
 FROM js_jobs WHERE scheduler_name=$1 AND job_group=$2 AND job_name=$3`, s.schedulerName, k.Group, k.Name)
	return scanJob(row)
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var data []byte
	err := row.Scan(&j.Key.Group, &j.Key.Name, &j.JobType, &data, &j.Description,
		&j.ConcurrentExecutionDisallowed, &j.PersistJobDataAfterExecution, &j.Durable, &j.RequestsRecovery)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &j.JobDataMap); err != nil {
			return nil, err
		}
	}
	return &j, nil
}

func (s *Store) SelectTrigger(ctx context.Context, tx delegate.Tx, k key.TriggerKey) (*model.Trigger, error) {
	row := txOf(tx).QueryRow(ctx, triggerSelectSQL+` WHERE scheduler_name=$1 AND trigger_group=$2 AND trigger_name=$3`,
		s.schedulerName, k.Group, k.Name)
	return scanTrigger(row)
}

const triggerSelectSQL = `SELECT trigger_group, trigger_name, job_group, job_name, calendar_name, priority,
 next_fire_time, previous_fire_time, misfire_instruction, schedule_type, schedule_data, state,
 fire_instance_id, description, job_data FROM js_triggers`

func scanTrigger(row pgx.Row) (*model.Trigger, error) {
	var t model.Trigger
	var data, jobData []byte
	err := row.Scan(&t.Key.Group, &t.Key.Name, &t.JobKey.Group, &t.JobKey.Name, &t.CalendarName, &t.Priority,
		&t.NextFireTime, &t.PreviousFireTime, &t.MisfireInstruction, &t.ScheduleType, &data, &t.State,
		&t.FireInstanceID, &t.Description, &jobData)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.ScheduleData = data
	if len(jobData) > 0 {
		if err := json.Unmarshal(jobData, &t.JobDataMap); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func (s *Store) SelectTriggerState(ctx context.Context, tx delegate.Tx, k key.TriggerKey) (model.TriggerState, error) {
	var state model.TriggerState
	err := txOf(tx).QueryRow(ctx, `SELECT state FROM js_triggers WHERE scheduler_name=$1 AND trigger_group=$2 AND trigger_name=$3`,
		s.schedulerName, k.Group, k.Name).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.StateDeleted, nil
	}
	return state, err
}

func (s *Store) SelectTriggerStatus(ctx context.Context, tx delegate.Tx, k key.TriggerKey) (model.TriggerState, *time.Time, key.JobKey, bool, error) {
	var state model.TriggerState
	var next *time.Time
	var jk key.JobKey
	err := txOf(tx).QueryRow(ctx, `SELECT state, next_fire_time, job_group, job_name FROM js_triggers
 WHERE scheduler_name=$1 AND trigger_group=$2 AND trigger_name=$3`, s.schedulerName, k.Group, k.Name).
	Scan(&state, &next, &jk.Group, &jk.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil, key.JobKey{}, false, nil
	}
	return state, next, jk, err == nil, err
}

func (s *Store) SelectTriggersForJob(ctx context.Context, tx delegate.Tx, jk key.JobKey) ([]*model.Trigger, error) {
	rows, err := txOf(tx).Query(ctx, triggerSelectSQL+` WHERE scheduler_name=$1 AND job_group=$2 AND job_name=$3`,
		s.schedulerName, jk.Group, jk.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTriggers(rows)
}

func scanTriggers(rows pgx.Rows) ([]*model.Trigger, error) {
	var out []*model.Trigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) SelectTriggerNamesForJob(ctx context.Context, tx delegate.Tx, jk key.JobKey) ([]string, error) {
	rows, err := txOf(tx).Query(ctx, `SELECT trigger_name FROM js_triggers WHERE scheduler_name=$1 AND job_group=$2 AND job_name=$3`,
		s.schedulerName, jk.Group, jk.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) SelectTriggersForCalendar(ctx context.Context, tx delegate.Tx, calName string) ([]*model.Trigger, error) {
	rows, err := txOf(tx).Query(ctx, triggerSelectSQL+` WHERE scheduler_name=$1 AND calendar_name=$2`, s.schedulerName, calName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTriggers(rows)
}

func (s *Store) SelectNumTriggersForJob(ctx context.Context, tx delegate.Tx, jk key.JobKey) (int, error) {
	var n int
	err := txOf(tx).QueryRow(ctx, `SELECT count(*) FROM js_triggers WHERE scheduler_name=$1 AND job_group=$2 AND job_name=$3`,
		s.schedulerName, jk.Group, jk.Name).Scan(&n)
	return n, err
}

func (s *Store) SelectTriggersInState(ctx context.Context, tx delegate.Tx, state model.TriggerState) ([]*model.Trigger, error) {
	rows, err := txOf(tx).Query(ctx, triggerSelectSQL+` WHERE scheduler_name=$1 AND state=$2`, s.schedulerName, state)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTriggers(rows)
}

func (s *Store) SelectTriggerToAcquire(ctx context.Context, tx delegate.Tx, noLaterThan, misfireTime time.Time, maxCount int) ([]key.TriggerKey, error) {
	rows, err := txOf(tx).Query(ctx, `SELECT trigger_group, trigger_name FROM js_triggers
 WHERE scheduler_name=$1 AND state=$2 AND next_fire_time <= $3 AND next_fire_time > $4
 ORDER BY next_fire_time ASC, priority DESC LIMIT $5`,
		s.schedulerName, model.StateWaiting, noLaterThan, misfireTime, maxCount)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []key.TriggerKey
	for rows.Next() {
		var k key.TriggerKey
		if err := rows.Scan(&k.Group, &k.Name); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) SelectPausedTriggerGroups(ctx context.Context, tx delegate.Tx) ([]string, error) {
	return s.selectStrings(ctx, tx, `SELECT trigger_group FROM js_paused_trigger_groups WHERE scheduler_name=$1`)
}

func (s *Store) SelectTriggerGroups(ctx context.Context, tx delegate.Tx) ([]string, error) {
	return s.selectStrings(ctx, tx, `SELECT DISTINCT trigger_group FROM js_triggers WHERE scheduler_name=$1`)
}

func (s *Store) SelectJobGroups(ctx context.Context, tx delegate.Tx) ([]string, error) {
	return s.selectStrings(ctx, tx, `SELECT DISTINCT job_group FROM js_jobs WHERE scheduler_name=$1`)
}

func (s *Store) selectStrings(ctx context.Context, tx delegate.Tx, query string) ([]string, error) {
	rows, err := txOf(tx).Query(ctx, query, s.schedulerName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) SelectCalendars(ctx context.Context, tx delegate.Tx) ([]*model.Calendar, error) {
	rows, err := txOf(tx).Query(ctx, `SELECT calendar_name, calendar_type, calendar_data FROM js_calendars WHERE scheduler_name=$1`, s.schedulerName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Calendar
	for rows.Next() {
		c := &model.Calendar{SchedulerName: s.schedulerName}
		if err := rows.Scan(&c.Name, &c.Type, &c.Data); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) SelectCalendar(ctx context.Context, tx delegate.Tx, name string) (*model.Calendar, error) {
	c := &model.Calendar{SchedulerName: s.schedulerName, Name: name}
	err := txOf(tx).QueryRow(ctx, `SELECT calendar_type, calendar_data FROM js_calendars WHERE scheduler_name=$1 AND calendar_name=$2`,
		s.schedulerName, name).Scan(&c.Type, &c.Data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (s *Store) SelectNumJobs(ctx context.Context, tx delegate.Tx) (int, error) {
	return s.count(ctx, tx, `SELECT count(*) FROM js_jobs WHERE scheduler_name=$1`)
}

func (s *Store) SelectNumTriggers(ctx context.Context, tx delegate.Tx) (int, error) {
	return s.count(ctx, tx, `SELECT count(*) FROM js_triggers WHERE scheduler_name=$1`)
}

func (s *Store) SelectNumCalendars(ctx context.Context, tx delegate.Tx) (int, error) {
	return s.count(ctx, tx, `SELECT count(*) FROM js_calendars WHERE scheduler_name=$1`)
}

func (s *Store) count(ctx context.Context, tx delegate.Tx, query string) (int, error) {
	var n int
	err := txOf(tx).QueryRow(ctx, query, s.schedulerName).Scan(&n)
	return n, err
}

func (s *Store) SelectJobKeys(ctx context.Context, tx delegate.Tx, m key.GroupMatcher) ([]key.JobKey, error) {
	query, args := groupFilteredQuery(`SELECT job_group, job_name FROM js_jobs WHERE scheduler_name=$1`, "job_group", m, s.schedulerName)
	rows, err := txOf(tx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []key.JobKey
	for rows.Next() {
		var k key.JobKey
		if err := rows.Scan(&k.Group, &k.Name); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) SelectTriggerKeys(ctx context.Context, tx delegate.Tx, m key.GroupMatcher) ([]key.TriggerKey, error) {
	query, args := groupFilteredQuery(`SELECT trigger_group, trigger_name FROM js_triggers WHERE scheduler_name=$1`, "trigger_group", m, s.schedulerName)
	rows, err := txOf(tx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []key.TriggerKey
	for rows.Next() {
		var k key.TriggerKey
		if err := rows.Scan(&k.Group, &k.Name); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// groupFilteredQuery appends the SQL predicate matching m.Operator. Anything
// adds no predicate at all.
func groupFilteredQuery(base, column string, m key.GroupMatcher, schedulerName string) (string, []any) {
	switch m.Operator {
	case key.OpEquals:
		return base + fmt.Sprintf(" AND %s=$2", column), []any{schedulerName, m.CompareToValue}
	case key.OpStartsWith:
		return base + fmt.Sprintf(" AND %s LIKE $2", column), []any{schedulerName, m.CompareToValue + "%"}
	case key.OpEndsWith:
		return base + fmt.Sprintf(" AND %s LIKE $2", column), []any{schedulerName, "%" + m.CompareToValue}
	case key.OpContains:
		return base + fmt.Sprintf(" AND %s LIKE $2", column), []any{schedulerName, "%" + m.CompareToValue + "%"}
		default: // OpAnything
		return base, []any{schedulerName}
	}
}

func (s *Store) SelectSchedulerStateRecords(ctx context.Context, tx delegate.Tx, schedulerName string) ([]*model.SchedulerStateRecord, error) {
	rows, err := txOf(tx).Query(ctx, `SELECT instance_id, last_checkin_time, checkin_interval_ms FROM js_scheduler_state WHERE scheduler_name=$1`, schedulerName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.SchedulerStateRecord
	for rows.Next() {
		r := &model.SchedulerStateRecord{SchedulerName: schedulerName}
		var ms int64
		if err := rows.Scan(&r.InstanceID, &r.LastCheckinTime, &ms); err != nil {
			return nil, err
		}
		r.CheckinInterval = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

const firedTriggerSelectSQL = `SELECT fire_instance_id, instance_id, trigger_group, trigger_name, job_group, job_name,
 state, priority, fired_time, scheduled_time, is_non_concurrent, requests_recovery, job_data FROM js_fired_triggers`

func scanFiredTriggers(rows pgx.Rows, schedulerName string) ([]*model.FiredTrigger, error) {
	var out []*model.FiredTrigger
	for rows.Next() {
		f := &model.FiredTrigger{SchedulerName: schedulerName}
		var jobData []byte
		if err := rows.Scan(&f.FireInstanceID, &f.InstanceID, &f.TriggerKey.Group, &f.TriggerKey.Name,
			&f.JobKey.Group, &f.JobKey.Name, &f.State, &f.Priority, &f.FiredTime, &f.ScheduledTime,
			&f.IsNonConcurrent, &f.RequestsRecovery, &jobData); err != nil {
			return nil, err
		}
		f.JobGroup = f.JobKey.Group
		if len(jobData) > 0 {
			if err := json.Unmarshal(jobData, &f.JobDataMap); err != nil {
				return nil, err
			}
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) SelectFiredTriggerRecords(ctx context.Context, tx delegate.Tx, k key.TriggerKey) ([]*model.FiredTrigger, error) {
	rows, err := txOf(tx).Query(ctx, firedTriggerSelectSQL+` WHERE scheduler_name=$1 AND trigger_group=$2 AND trigger_name=$3`,
		s.schedulerName, k.Group, k.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFiredTriggers(rows, s.schedulerName)
}

func (s *Store) SelectFiredTriggerRecordsForJob(ctx context.Context, tx delegate.Tx, jk key.JobKey) ([]*model.FiredTrigger, error) {
	rows, err := txOf(tx).Query(ctx, firedTriggerSelectSQL+` WHERE scheduler_name=$1 AND job_group=$2 AND job_name=$3`,
		s.schedulerName, jk.Group, jk.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFiredTriggers(rows, s.schedulerName)
}

func (s *Store) SelectInstancesFiredTriggerRecords(ctx context.Context, tx delegate.Tx, instanceID string) ([]*model.FiredTrigger, error) {
	rows, err := txOf(tx).Query(ctx, firedTriggerSelectSQL+` WHERE scheduler_name=$1 AND instance_id=$2`, s.schedulerName, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFiredTriggers(rows, s.schedulerName)
}

func (s *Store) SelectFiredTriggerInstanceNames(ctx context.Context, tx delegate.Tx) ([]string, error) {
	return s.selectStrings(ctx, tx, `SELECT DISTINCT instance_id FROM js_fired_triggers WHERE scheduler_name=$1`)
}

func (s *Store) CountMisfiredTriggersInState(ctx context.Context, tx delegate.Tx, state model.TriggerState, beforeTime time.Time) (int, error) {
	var n int
	err := txOf(tx).QueryRow(ctx, `SELECT count(*) FROM js_triggers WHERE scheduler_name=$1 AND state=$2 AND next_fire_time < $3`,
		s.schedulerName, state, beforeTime).Scan(&n)
	return n, err
}

func (s *Store) SelectMisfiredTriggersInState(ctx context.Context, tx delegate.Tx, state model.TriggerState, beforeTime time.Time, maxCount int) ([]key.TriggerKey, bool, error) {
	limit := maxCount
	if limit <= 0 {
		limit = 1 << 30
	}
	rows, err := txOf(tx).Query(ctx, `SELECT trigger_group, trigger_name FROM js_triggers
 WHERE scheduler_name=$1 AND state=$2 AND next_fire_time < $3 ORDER BY next_fire_time ASC LIMIT $4`,
		s.schedulerName, state, beforeTime, limit+1)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()
	var out []key.TriggerKey
	for rows.Next() {
		var k key.TriggerKey
		if err := rows.Scan(&k.Group, &k.Name); err != nil {
			return nil, false, err
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	hasMore := maxCount > 0 && len(out) > maxCount
	if hasMore {
		out = out[:maxCount]
	}
	return out, hasMore, nil
}

func (s *Store) SelectTriggerJobDataMap(ctx context.Context, tx delegate.Tx, k key.TriggerKey) (map[string]any, error) {
	var data []byte
	err := txOf(tx).QueryRow(ctx, `SELECT job_data FROM js_triggers WHERE scheduler_name=$1 AND trigger_group=$2 AND trigger_name=$3`,
		s.schedulerName, k.Group, k.Name).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) || len(data) == 0 {
		return nil, ignoreNoRows(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
