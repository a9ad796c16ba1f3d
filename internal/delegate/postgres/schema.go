package postgres

// schemaDDL creates the tables backing the Delegate implementation. Applied
// once at startup by EnsureSchema; idempotent via IF NOT EXISTS for
// local/dev bootstrap.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS js_jobs (
 scheduler_name TEXT NOT NULL,
 job_group TEXT NOT NULL,
 job_name TEXT NOT NULL,
 job_type TEXT NOT NULL,
 job_data JSONB,
 description TEXT,
 concurrent_exec_disallowed BOOLEAN NOT NULL DEFAULT FALSE,
 persist_job_data BOOLEAN NOT NULL DEFAULT FALSE,
 durable BOOLEAN NOT NULL DEFAULT FALSE,
 requests_recovery BOOLEAN NOT NULL DEFAULT FALSE,
 PRIMARY KEY (scheduler_name, job_group, job_name)
);

CREATE TABLE IF NOT EXISTS js_triggers (
 scheduler_name TEXT NOT NULL,
 trigger_group TEXT NOT NULL,
 trigger_name TEXT NOT NULL,
 job_group TEXT NOT NULL,
 job_name TEXT NOT NULL,
 calendar_name TEXT NOT NULL DEFAULT '',
 priority INT NOT NULL DEFAULT 5,
 next_fire_time TIMESTAMPTZ,
 previous_fire_time TIMESTAMPTZ,
 misfire_instruction INT NOT NULL DEFAULT 0,
 schedule_type TEXT NOT NULL,
 schedule_data JSONB,
 state TEXT NOT NULL,
 fire_instance_id TEXT NOT NULL DEFAULT '',
 description TEXT,
 job_data JSONB,
 PRIMARY KEY (scheduler_name, trigger_group, trigger_name)
);
CREATE INDEX IF NOT EXISTS js_triggers_acquire_idx ON js_triggers (scheduler_name, state, next_fire_time);
CREATE INDEX IF NOT EXISTS js_triggers_job_idx ON js_triggers (scheduler_name, job_group, job_name);

CREATE TABLE IF NOT EXISTS js_calendars (
 scheduler_name TEXT NOT NULL,
 calendar_name TEXT NOT NULL,
 calendar_type TEXT NOT NULL,
 calendar_data JSONB,
 PRIMARY KEY (scheduler_name, calendar_name)
);

CREATE TABLE IF NOT EXISTS js_fired_triggers (
 scheduler_name TEXT NOT NULL,
 fire_instance_id TEXT NOT NULL,
 instance_id TEXT NOT NULL,
 trigger_group TEXT NOT NULL,
 trigger_name TEXT NOT NULL,
 job_group TEXT NOT NULL,
 job_name TEXT NOT NULL,
 state TEXT NOT NULL,
 priority INT NOT NULL DEFAULT 5,
 fired_time TIMESTAMPTZ NOT NULL,
 scheduled_time TIMESTAMPTZ NOT NULL,
 is_non_concurrent BOOLEAN NOT NULL DEFAULT FALSE,
 requests_recovery BOOLEAN NOT NULL DEFAULT FALSE,
 job_data JSONB,
 PRIMARY KEY (scheduler_name, fire_instance_id)
);
CREATE INDEX IF NOT EXISTS js_fired_triggers_instance_idx ON js_fired_triggers (scheduler_name, instance_id);
CREATE INDEX IF NOT EXISTS js_fired_triggers_trigger_idx ON js_fired_triggers (scheduler_name, trigger_group, trigger_name);

CREATE TABLE IF NOT EXISTS js_paused_trigger_groups (
 scheduler_name TEXT NOT NULL,
 trigger_group TEXT NOT NULL,
 PRIMARY KEY (scheduler_name, trigger_group)
);

CREATE TABLE IF NOT EXISTS js_paused_job_groups (
 scheduler_name TEXT NOT NULL,
 job_group TEXT NOT NULL,
 PRIMARY KEY (scheduler_name, job_group)
);

CREATE TABLE IF NOT EXISTS js_scheduler_state (
 scheduler_name TEXT NOT NULL,
 instance_id TEXT NOT NULL,
 last_checkin_time TIMESTAMPTZ NOT NULL,
 checkin_interval_ms BIGINT NOT NULL,
 PRIMARY KEY (scheduler_name, instance_id)
);

CREATE TABLE IF NOT EXISTS js_locks (
 scheduler_name TEXT NOT NULL,
 lock_name TEXT NOT NULL,
 PRIMARY KEY (scheduler_name, lock_name)
);
`
