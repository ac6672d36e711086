package store

// Schema statements are idempotent and run in order by EnsureSchema.

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS payment_orders (
		order_id            TEXT PRIMARY KEY,
		user_id             TEXT NOT NULL,
		plan_id             TEXT NOT NULL,
		amount              NUMERIC(12,2) NOT NULL,
		currency            TEXT NOT NULL,
		status              TEXT NOT NULL,
		txn_token           TEXT,
		gateway_result_code TEXT,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_orders_user_id ON payment_orders (user_id)`,
	`CREATE TABLE IF NOT EXISTS payment_transactions (
		id                      UUID PRIMARY KEY,
		order_id                TEXT NOT NULL UNIQUE REFERENCES payment_orders (order_id),
		user_id                 TEXT NOT NULL,
		plan_id                 TEXT NOT NULL,
		amount                  NUMERIC(12,2) NOT NULL,
		currency                TEXT NOT NULL,
		external_transaction_id TEXT NOT NULL,
		status                  TEXT NOT NULL,
		created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_transactions_user_created ON payment_transactions (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS plan_subscriptions (
		user_id            TEXT PRIMARY KEY,
		plan_id            TEXT NOT NULL,
		status             TEXT NOT NULL,
		current_period_end TIMESTAMPTZ,
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS payment_orders (
		order_id            TEXT PRIMARY KEY,
		user_id             TEXT NOT NULL,
		plan_id             TEXT NOT NULL,
		amount              TEXT NOT NULL,
		currency            TEXT NOT NULL,
		status              TEXT NOT NULL,
		txn_token           TEXT,
		gateway_result_code TEXT,
		created_at          TEXT NOT NULL,
		updated_at          TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_orders_user_id ON payment_orders (user_id)`,
	`CREATE TABLE IF NOT EXISTS payment_transactions (
		id                      TEXT PRIMARY KEY,
		order_id                TEXT NOT NULL UNIQUE REFERENCES payment_orders (order_id),
		user_id                 TEXT NOT NULL,
		plan_id                 TEXT NOT NULL,
		amount                  TEXT NOT NULL,
		currency                TEXT NOT NULL,
		external_transaction_id TEXT NOT NULL,
		status                  TEXT NOT NULL,
		created_at              TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_transactions_user_created ON payment_transactions (user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS plan_subscriptions (
		user_id            TEXT PRIMARY KEY,
		plan_id            TEXT NOT NULL,
		status             TEXT NOT NULL,
		current_period_end TEXT,
		updated_at         TEXT NOT NULL
	)`,
}
