package postgres

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/coreclock/jobstore/internal/delegate"
	"github.com/coreclock/jobstore/internal/key"
	"github.com/coreclock/jobstore/internal/model"
)

func (s *Store) InsertJobDetail(ctx context.Context, tx delegate.Tx, j *model.Job) error {
	data, err := json.Marshal(j.JobDataMap)
	if err != nil {
		return err
	}
	_, err = txOf(tx).Exec(ctx, `INSERT INTO js_jobs (scheduler_name, job_group, job_name, job_type, job_data,
 description, concurrent_exec_disallowed, persist_job_data, durable, requests_recovery)
 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		s.schedulerName, j.Key.Group, j.Key.Name, j.JobType, data, j.Description,
		j.ConcurrentExecutionDisallowed, j.PersistJobDataAfterExecution, j.Durable, j.RequestsRecovery)
	return asDup(err)
}

func (s *Store) UpdateJobDetail(ctx context.Context, tx delegate.Tx, j *model.Job) error {
	data, err := json.Marshal(j.JobDataMap)
	if err != nil {
		return err
	}
	_, err = txOf(tx).Exec(ctx, `UPDATE js_jobs SET job_type=$1, job_data=$2, description=$3,
 concurrent_exec_disallowed=$4, persist_job_data=$5, durable=$6, requests_recovery=$7
 WHERE scheduler_name=$8 AND job_group=$9 AND job_name=$10`,
		j.JobType, data, j.Description, j.ConcurrentExecutionDisallowed, j.PersistJobDataAfterExecution,
		j.Durable, j.RequestsRecovery, s.schedulerName, j.Key.Group, j.Key.Name)
	return err
}

func (s *Store) DeleteJobDetail(ctx context.Context, tx delegate.Tx, jk key.JobKey) (bool, error) {
	tag, err := txOf(tx).Exec(ctx, `DELETE FROM js_jobs WHERE scheduler_name=$1 AND job_group=$2 AND job_name=$3`,
		s.schedulerName, jk.Group, jk.Name)
	return tag.RowsAffected() > 0, err
}

func (s *Store) InsertTrigger(ctx context.Context, tx delegate.Tx, t *model.Trigger) error {
	jobData, err := json.Marshal(t.JobDataMap)
	if err != nil {
		return err
	}
	_, err = txOf(tx).Exec(ctx, `INSERT INTO js_triggers (scheduler_name, trigger_group, trigger_name, job_group,
 job_name, calendar_name, priority, next_fire_time, previous_fire_time, misfire_instruction,
 schedule_type, schedule_data, state, fire_instance_id, description, job_data)
 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		s.schedulerName, t.Key.Group, t.Key.Name, t.JobKey.Group, t.JobKey.Name, t.CalendarName,
		t.Priority, t.NextFireTime, t.PreviousFireTime, t.MisfireInstruction, t.ScheduleType,
		[]byte(t.ScheduleData), t.State, t.FireInstanceID, t.Description, jobData)
	return asDup(err)
}

func (s *Store) UpdateTrigger(ctx context.Context, tx delegate.Tx, t *model.Trigger) error {
	jobData, err := json.Marshal(t.JobDataMap)
	if err != nil {
		return err
	}
	_, err = txOf(tx).Exec(ctx, `UPDATE js_triggers SET job_group=$1, job_name=$2, calendar_name=$3, priority=$4,
 next_fire_time=$5, previous_fire_time=$6, misfire_instruction=$7, schedule_type=$8, schedule_data=$9,
 state=$10, fire_instance_id=$11, description=$12, job_data=$13
 WHERE scheduler_name=$14 AND trigger_group=$15 AND trigger_name=$16`,
		t.JobKey.Group, t.JobKey.Name, t.CalendarName, t.Priority, t.NextFireTime, t.PreviousFireTime,
		t.MisfireInstruction, t.ScheduleType, []byte(t.ScheduleData), t.State, t.FireInstanceID,
		t.Description, jobData, s.schedulerName, t.Key.Group, t.Key.Name)
	return err
}

func (s *Store) DeleteTrigger(ctx context.Context, tx delegate.Tx, k key.TriggerKey) (bool, error) {
	tag, err := txOf(tx).Exec(ctx, `DELETE FROM js_triggers WHERE scheduler_name=$1 AND trigger_group=$2 AND trigger_name=$3`,
		s.schedulerName, k.Group, k.Name)
	return tag.RowsAffected() > 0, err
}

func (s *Store) InsertCalendar(ctx context.Context, tx delegate.Tx, c *model.Calendar) error {
	_, err := txOf(tx).Exec(ctx, `INSERT INTO js_calendars (scheduler_name, calendar_name, calendar_type, calendar_data)
 VALUES ($1,$2,$3,$4)`, s.schedulerName, c.Name, c.Type, []byte(c.Data))
	return asDup(err)
}

func (s *Store) UpdateCalendar(ctx context.Context, tx delegate.Tx, c *model.Calendar) error {
	_, err := txOf(tx).Exec(ctx, `UPDATE js_calendars SET calendar_type=$1, calendar_data=$2
 WHERE scheduler_name=$3 AND calendar_name=$4`, c.Type, []byte(c.Data), s.schedulerName, c.Name)
	return err
}

func (s *Store) DeleteCalendar(ctx context.Context, tx delegate.Tx, name string) (bool, error) {
	tag, err := txOf(tx).Exec(ctx, `DELETE FROM js_calendars WHERE scheduler_name=$1 AND calendar_name=$2`, s.schedulerName, name)
	return tag.RowsAffected() > 0, err
}

func (s *Store) InsertFiredTrigger(ctx context.Context, tx delegate.Tx, f *model.FiredTrigger) error {
	data, err := json.Marshal(f.JobDataMap)
	if err != nil {
		return err
	}
	_, err = txOf(tx).Exec(ctx, `INSERT INTO js_fired_triggers (scheduler_name, fire_instance_id, instance_id,
 trigger_group, trigger_name, job_group, job_name, state, priority, fired_time, scheduled_time,
 is_non_concurrent, requests_recovery, job_data) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		s.schedulerName, f.FireInstanceID, f.InstanceID, f.TriggerKey.Group, f.TriggerKey.Name,
		f.JobKey.Group, f.JobKey.Name, f.State, f.Priority, f.FiredTime, f.ScheduledTime,
		f.IsNonConcurrent, f.RequestsRecovery, data)
	return asDup(err)
}

func (s *Store) UpdateFiredTrigger(ctx context.Context, tx delegate.Tx, f *model.FiredTrigger) error {
	data, err := json.Marshal(f.JobDataMap)
	if err != nil {
		return err
	}
	_, err = txOf(tx).Exec(ctx, `UPDATE js_fired_triggers SET state=$1, job_data=$2
 WHERE scheduler_name=$3 AND fire_instance_id=$4`, f.State, data, s.schedulerName, f.FireInstanceID)
	return err
}

func (s *Store) DeleteFiredTrigger(ctx context.Context, tx delegate.Tx, fireInstanceID string) (bool, error) {
	tag, err := txOf(tx).Exec(ctx, `DELETE FROM js_fired_triggers WHERE scheduler_name=$1 AND fire_instance_id=$2`,
		s.schedulerName, fireInstanceID)
	return tag.RowsAffected() > 0, err
}

func (s *Store) DeleteFiredTriggersForInstance(ctx context.Context, tx delegate.Tx, instanceID string) (int, error) {
	tag, err := txOf(tx).Exec(ctx, `DELETE FROM js_fired_triggers WHERE scheduler_name=$1 AND instance_id=$2`,
		s.schedulerName, instanceID)
	return int(tag.RowsAffected()), err
}

func (s *Store) UpdateTriggerState(ctx context.Context, tx delegate.Tx, k key.TriggerKey, newState model.TriggerState) (bool, error) {
	tag, err := txOf(tx).Exec(ctx, `UPDATE js_triggers SET state=$1 WHERE scheduler_name=$2 AND trigger_group=$3 AND trigger_name=$4`,
		newState, s.schedulerName, k.Group, k.Name)
	return tag.RowsAffected() > 0, err
}

func (s *Store) UpdateTriggerStateFromOtherState(ctx context.Context, tx delegate.Tx, k key.TriggerKey, newState, oldState model.TriggerState) (bool, error) {
	tag, err := txOf(tx).Exec(ctx, `UPDATE js_triggers SET state=$1
 WHERE scheduler_name=$2 AND trigger_group=$3 AND trigger_name=$4 AND state=$5`,
		newState, s.schedulerName, k.Group, k.Name, oldState)
	return tag.RowsAffected() > 0, err
}

func (s *Store) UpdateTriggerStatesFromOtherStates(ctx context.Context, tx delegate.Tx, newState model.TriggerState, oldStates...model.TriggerState) (int, error) {
	placeholders, args := inClause(oldStates, s.schedulerName, newState)
	tag, err := txOf(tx).Exec(ctx, `UPDATE js_triggers SET state=$2 WHERE scheduler_name=$1 AND state IN (`+placeholders+`)`, args...)
	return int(tag.RowsAffected()), err
}

func (s *Store) UpdateTriggerGroupStateFromOtherState(ctx context.Context, tx delegate.Tx, m key.GroupMatcher, newState, oldState model.TriggerState) ([]string, error) {
	return s.updateGroupState(ctx, tx, m, newState, []model.TriggerState{oldState})
}

func (s *Store) UpdateTriggerGroupStateFromOtherStates(ctx context.Context, tx delegate.Tx, m key.GroupMatcher, newState model.TriggerState, oldStates...model.TriggerState) ([]string, error) {
	return s.updateGroupState(ctx, tx, m, newState, oldStates)
}

func (s *Store) updateGroupState(ctx context.Context, tx delegate.Tx, m key.GroupMatcher, newState model.TriggerState, oldStates []model.TriggerState) ([]string, error) {
	query, args := groupFilteredQuery(`SELECT DISTINCT trigger_group FROM js_triggers WHERE scheduler_name=$1`, "trigger_group", m, s.schedulerName)
	placeholders, stateArgs := inClause(oldStates, args...)
	rows, err := txOf(tx).Query(ctx, query+` AND state IN (`+placeholders+`)`, stateArgs...)
	if err != nil {
		return nil, err
	}
	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			rows.Close()
			return nil, err
		}
		groups = append(groups, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, g := range groups {
		placeholders, stateArgs := inClause(oldStates, s.schedulerName, g, newState)
		if _, err := txOf(tx).Exec(ctx, `UPDATE js_triggers SET state=$3 WHERE scheduler_name=$1 AND trigger_group=$2 AND state IN (`+placeholders+`)`,
			stateArgs...); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

func (s *Store) UpdateTriggerStatesForJob(ctx context.Context, tx delegate.Tx, jk key.JobKey, newState model.TriggerState) (int, error) {
	tag, err := txOf(tx).Exec(ctx, `UPDATE js_triggers SET state=$1 WHERE scheduler_name=$2 AND job_group=$3 AND job_name=$4`,
		newState, s.schedulerName, jk.Group, jk.Name)
	return int(tag.RowsAffected()), err
}

func (s *Store) UpdateTriggerStatesForJobFromOtherState(ctx context.Context, tx delegate.Tx, jk key.JobKey, newState, oldState model.TriggerState) (int, error) {
	tag, err := txOf(tx).Exec(ctx, `UPDATE js_triggers SET state=$1
 WHERE scheduler_name=$2 AND job_group=$3 AND job_name=$4 AND state=$5`,
		newState, s.schedulerName, jk.Group, jk.Name, oldState)
	return int(tag.RowsAffected()), err
}

func (s *Store) InsertPausedTriggerGroup(ctx context.Context, tx delegate.Tx, group string) error {
	_, err := txOf(tx).Exec(ctx, `INSERT INTO js_paused_trigger_groups (scheduler_name, trigger_group) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
		s.schedulerName, group)
	return err
}

func (s *Store) DeletePausedTriggerGroup(ctx context.Context, tx delegate.Tx, group string) error {
	_, err := txOf(tx).Exec(ctx, `DELETE FROM js_paused_trigger_groups WHERE scheduler_name=$1 AND trigger_group=$2`, s.schedulerName, group)
	return err
}

func (s *Store) DeleteAllPausedTriggerGroups(ctx context.Context, tx delegate.Tx) error {
	_, err := txOf(tx).Exec(ctx, `DELETE FROM js_paused_trigger_groups WHERE scheduler_name=$1`, s.schedulerName)
	return err
}

func (s *Store) IsTriggerGroupPaused(ctx context.Context, tx delegate.Tx, group string) (bool, error) {
	var n int
	err := txOf(tx).QueryRow(ctx, `SELECT 1 FROM js_paused_trigger_groups WHERE scheduler_name=$1 AND trigger_group=$2`,
		s.schedulerName, group).Scan(&n)
	if err != nil {
		return false, ignoreNoRows(err)
	}
	return true, nil
}

func (s *Store) InsertPausedJobGroup(ctx context.Context, tx delegate.Tx, group string) error {
	_, err := txOf(tx).Exec(ctx, `INSERT INTO js_paused_job_groups (scheduler_name, job_group) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
		s.schedulerName, group)
	return err
}

func (s *Store) DeletePausedJobGroup(ctx context.Context, tx delegate.Tx, group string) error {
	_, err := txOf(tx).Exec(ctx, `DELETE FROM js_paused_job_groups WHERE scheduler_name=$1 AND job_group=$2`, s.schedulerName, group)
	return err
}

func (s *Store) SelectPausedJobGroups(ctx context.Context, tx delegate.Tx) ([]string, error) {
	return s.selectStrings(ctx, tx, `SELECT job_group FROM js_paused_job_groups WHERE scheduler_name=$1`)
}

func (s *Store) IsJobGroupPaused(ctx context.Context, tx delegate.Tx, group string) (bool, error) {
	var n int
	err := txOf(tx).QueryRow(ctx, `SELECT 1 FROM js_paused_job_groups WHERE scheduler_name=$1 AND job_group=$2`,
		s.schedulerName, group).Scan(&n)
	if err != nil {
		return false, ignoreNoRows(err)
	}
	return true, nil
}

func (s *Store) UpdateSchedulerState(ctx context.Context, tx delegate.Tx, rec *model.SchedulerStateRecord) (bool, error) {
	tag, err := txOf(tx).Exec(ctx, `UPDATE js_scheduler_state SET last_checkin_time=$1, checkin_interval_ms=$2
 WHERE scheduler_name=$3 AND instance_id=$4`,
		rec.LastCheckinTime, rec.CheckinInterval.Milliseconds(), rec.SchedulerName, rec.InstanceID)
	return tag.RowsAffected() > 0, err
}

func (s *Store) InsertSchedulerState(ctx context.Context, tx delegate.Tx, rec *model.SchedulerStateRecord) error {
	_, err := txOf(tx).Exec(ctx, `INSERT INTO js_scheduler_state (scheduler_name, instance_id, last_checkin_time, checkin_interval_ms)
 VALUES ($1,$2,$3,$4)`, rec.SchedulerName, rec.InstanceID, rec.LastCheckinTime, rec.CheckinInterval.Milliseconds())
	return asDup(err)
}

func (s *Store) DeleteSchedulerState(ctx context.Context, tx delegate.Tx, instanceID string) (bool, error) {
	tag, err := txOf(tx).Exec(ctx, `DELETE FROM js_scheduler_state WHERE scheduler_name=$1 AND instance_id=$2`,
		s.schedulerName, instanceID)
	return tag.RowsAffected() > 0, err
}

func (s *Store) ClearData(ctx context.Context, tx delegate.Tx) error {
	t := txOf(tx)
	tables := []string{"js_fired_triggers", "js_triggers", "js_jobs", "js_calendars",
		"js_paused_trigger_groups", "js_paused_job_groups"}
	for _, table := range tables {
		if _, err := t.Exec(ctx, `DELETE FROM `+table+` WHERE scheduler_name=$1`, s.schedulerName); err != nil {
			return err
		}
	}
	return nil
}

// inClause builds a "$n,$n+1,..." placeholder list for a variadic state
// filter, appending the states after the supplied leading args.
func inClause[T any](values []T, leadingArgs...any) (string, []any) {
	startAt := len(leadingArgs) + 1
	var sb strings.Builder
	args := append([]any{}, leadingArgs...)
	for i, v := range values {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('$')
		sb.WriteString(strconv.Itoa(startAt + i))
		args = append(args, v)
	}
	return sb.String(), args
}
