package postgresql

// migrations returns the schema migrations keyed by version.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflow_definitions (
				id VARCHAR(255) PRIMARY KEY,
				document JSONB NOT NULL,
				usage_count BIGINT NOT NULL DEFAULT 0,
				completed_count BIGINT NOT NULL DEFAULT 0,
				failed_count BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS workflow_instances (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				status VARCHAR(32) NOT NULL,
				document JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_instances_status
				ON workflow_instances(status);
			CREATE INDEX IF NOT EXISTS idx_instances_workflow_id
				ON workflow_instances(workflow_id);

			CREATE TABLE IF NOT EXISTS step_timers (
				instance_id VARCHAR(255) NOT NULL,
				step_id VARCHAR(255) NOT NULL,
				fire_at TIMESTAMP WITH TIME ZONE NOT NULL,
				condition VARCHAR(32) NOT NULL DEFAULT 'timeout',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (instance_id, step_id)
			);

			CREATE INDEX IF NOT EXISTS idx_step_timers_fire_at
				ON step_timers(fire_at);

			CREATE TABLE IF NOT EXISTS trigger_schedules (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				trigger_id VARCHAR(255) NOT NULL,
				cron_expression VARCHAR(255) NOT NULL,
				next_due_at TIMESTAMP WITH TIME ZONE NOT NULL,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_trigger_schedules_due
				ON trigger_schedules(active, next_due_at);
		`,
	}
}
