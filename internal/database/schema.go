package database

// Identifiers and totals are unsigned 64-bit, so they live in NUMERIC(20,0)
// columns and travel as decimal strings.
var schema = []string{
	`CREATE SEQUENCE IF NOT EXISTS ledger_timestamp_seq`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id              NUMERIC(20,0) PRIMARY KEY,
		debits_pending  NUMERIC(20,0) NOT NULL DEFAULT 0,
		debits_posted   NUMERIC(20,0) NOT NULL DEFAULT 0,
		credits_pending NUMERIC(20,0) NOT NULL DEFAULT 0,
		credits_posted  NUMERIC(20,0) NOT NULL DEFAULT 0,
		ledger          BIGINT        NOT NULL,
		code            INTEGER       NOT NULL,
		timestamp       NUMERIC(20,0) NOT NULL,
		seq             BIGSERIAL     UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS transfers (
		id                NUMERIC(20,0) PRIMARY KEY,
		debit_account_id  NUMERIC(20,0) NOT NULL REFERENCES accounts (id),
		credit_account_id NUMERIC(20,0) NOT NULL REFERENCES accounts (id),
		amount            NUMERIC(20,0) NOT NULL CHECK (amount > 0),
		ledger            BIGINT        NOT NULL,
		code              INTEGER       NOT NULL,
		timestamp         NUMERIC(20,0) NOT NULL UNIQUE
	)`,
	`CREATE INDEX IF NOT EXISTS transfers_debit_idx ON transfers (debit_account_id, timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS transfers_credit_idx ON transfers (credit_account_id, timestamp DESC)`,
}
