package postgresql

// migrations returns the schema migrations keyed by version.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflow_orders (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				kind VARCHAR(32) NOT NULL,
				demand_url TEXT NOT NULL DEFAULT '',
				group_id VARCHAR(64) NOT NULL,
				group_name VARCHAR(255) NOT NULL DEFAULT '',
				engineer VARCHAR(255) NOT NULL DEFAULT '',
				instance_name VARCHAR(255) NOT NULL,
				db_name VARCHAR(255) NOT NULL,
				syntax_type SMALLINT NOT NULL DEFAULT 0,
				is_backup BOOLEAN NOT NULL DEFAULT FALSE,
				status VARCHAR(32) NOT NULL,
				receivers JSONB NOT NULL DEFAULT '[]',
				cc_list JSONB NOT NULL DEFAULT '[]',
				schedule_name VARCHAR(128) NOT NULL DEFAULT '',
				last_execution_id VARCHAR(64) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_workflow_orders_status ON workflow_orders (status);
			CREATE INDEX IF NOT EXISTS idx_workflow_orders_group ON workflow_orders (group_id);
			CREATE INDEX IF NOT EXISTS idx_workflow_orders_created ON workflow_orders (created_at DESC);

			CREATE TABLE IF NOT EXISTS workflow_contents (
				order_id UUID PRIMARY KEY REFERENCES workflow_orders (id),
				sql_content TEXT NOT NULL,
				review_content TEXT NOT NULL DEFAULT '',
				execute_result TEXT NOT NULL DEFAULT ''
			);

			CREATE TABLE IF NOT EXISTS schedule_entries (
				name VARCHAR(128) PRIMARY KEY,
				order_id UUID NOT NULL UNIQUE REFERENCES workflow_orders (id),
				kind VARCHAR(16) NOT NULL,
				minutes INTEGER NOT NULL DEFAULT 0,
				cron_expression VARCHAR(255) NOT NULL DEFAULT '',
				next_fire_at TIMESTAMP WITH TIME ZONE NOT NULL,
				repeats INTEGER NOT NULL DEFAULT 0,
				timeout_seconds INTEGER NOT NULL DEFAULT -1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_schedule_entries_due ON schedule_entries (next_fire_at) WHERE repeats <> 0;

			CREATE TABLE IF NOT EXISTS audit_records (
				audit_id UUID PRIMARY KEY,
				order_id UUID NOT NULL UNIQUE REFERENCES workflow_orders (id),
				workflow_type SMALLINT NOT NULL,
				status SMALLINT NOT NULL DEFAULT 0,
				approval_chain JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS audit_logs (
				id BIGSERIAL PRIMARY KEY,
				audit_id UUID NOT NULL REFERENCES audit_records (audit_id),
				operation SMALLINT NOT NULL,
				description VARCHAR(255) NOT NULL DEFAULT '',
				info TEXT NOT NULL DEFAULT '',
				operator VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_audit_logs_audit ON audit_logs (audit_id, id);
		`,
	}
}
