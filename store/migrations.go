package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// migration is one named, idempotent schema step. Idempotence is
// achieved the same way the source does it: CREATE TABLE/INDEX IF NOT
// EXISTS, applied in order, tracked by id in _migrations.
type migration struct {
	name string
	sql  string
}

// migrations is the ordered list of schema changes. Numbering matches
// spec §4.2/§6: 001 is the core schema; 002 and 004 are the additive,
// optional tables this implementation chooses to maintain (token
// holders, search index — see SPEC_FULL.md §4). Migration 003
// (epochs) is deliberately not implemented: spec §6 lists it, but
// neither spec.md nor original_source/ define any operation that reads
// or writes an epochs table, so it would be dead schema (see
// DESIGN.md).
var migrations = []migration{
	{name: "001_core_schema", sql: coreSchemaSQL},
	{name: "002_token_holders", sql: tokenHoldersSchemaSQL},
	{name: "004_search_index", sql: searchIndexSchemaSQL},
}

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS blocks (
	block_id TEXT PRIMARY KEY,
	parent_id TEXT NOT NULL,
	height INTEGER NOT NULL,
	timestamp INTEGER NOT NULL,
	difficulty TEXT NOT NULL,
	size INTEGER NOT NULL,
	total_coins_in_outputs INTEGER NOT NULL,
	tx_count INTEGER NOT NULL,
	miner_address TEXT,
	miner_reward INTEGER NOT NULL,
	main_chain INTEGER NOT NULL DEFAULT 1,
	global_index INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_blocks_height_main ON blocks(height) WHERE main_chain = 1;
CREATE INDEX IF NOT EXISTS idx_blocks_miner_address ON blocks(miner_address);
CREATE INDEX IF NOT EXISTS idx_blocks_timestamp ON blocks(timestamp);
CREATE INDEX IF NOT EXISTS idx_blocks_global_index ON blocks(global_index);

CREATE TABLE IF NOT EXISTS transactions (
	tx_id TEXT PRIMARY KEY,
	block_id TEXT NOT NULL,
	inclusion_height INTEGER NOT NULL,
	timestamp INTEGER NOT NULL,
	index_in_block INTEGER NOT NULL,
	global_index INTEGER NOT NULL,
	coinbase INTEGER NOT NULL,
	size INTEGER NOT NULL,
	input_count INTEGER NOT NULL,
	output_count INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_block_id ON transactions(block_id);
CREATE INDEX IF NOT EXISTS idx_transactions_inclusion_height ON transactions(inclusion_height);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_global_index ON transactions(global_index);

CREATE TABLE IF NOT EXISTS boxes (
	box_id TEXT PRIMARY KEY,
	tx_id TEXT NOT NULL,
	output_index INTEGER NOT NULL,
	script_bytes TEXT NOT NULL,
	script_template_hash TEXT NOT NULL,
	address TEXT NOT NULL,
	value INTEGER NOT NULL,
	creation_height INTEGER NOT NULL,
	settlement_height INTEGER NOT NULL,
	registers TEXT,
	global_index INTEGER NOT NULL,
	spent_tx_id TEXT,
	spent_input_index INTEGER,
	spent_height INTEGER
);
CREATE INDEX IF NOT EXISTS idx_boxes_address ON boxes(address);
CREATE INDEX IF NOT EXISTS idx_boxes_template_hash ON boxes(script_template_hash);
CREATE INDEX IF NOT EXISTS idx_boxes_creation_height ON boxes(creation_height);
CREATE INDEX IF NOT EXISTS idx_boxes_global_index ON boxes(global_index);
CREATE INDEX IF NOT EXISTS idx_boxes_tx_id ON boxes(tx_id);
CREATE INDEX IF NOT EXISTS idx_boxes_unspent_address ON boxes(address) WHERE spent_tx_id IS NULL;
CREATE INDEX IF NOT EXISTS idx_boxes_spent_tx_id ON boxes(spent_tx_id) WHERE spent_tx_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS box_assets (
	id INTEGER PRIMARY KEY,
	box_id TEXT NOT NULL,
	token_id TEXT NOT NULL,
	amount INTEGER NOT NULL,
	asset_index INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_box_assets_box_id ON box_assets(box_id);
CREATE INDEX IF NOT EXISTS idx_box_assets_token_id ON box_assets(token_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_box_assets_natural_key ON box_assets(box_id, asset_index);

CREATE TABLE IF NOT EXISTS tokens (
	token_id TEXT PRIMARY KEY,
	minting_box_id TEXT NOT NULL,
	emission_amount INTEGER NOT NULL,
	name TEXT,
	description TEXT,
	decimals INTEGER,
	creation_height INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tokens_name ON tokens(name);
CREATE INDEX IF NOT EXISTS idx_tokens_creation_height ON tokens(creation_height);

CREATE TABLE IF NOT EXISTS inputs (
	id INTEGER PRIMARY KEY,
	tx_id TEXT NOT NULL,
	box_id TEXT NOT NULL,
	input_index INTEGER NOT NULL,
	proof_bytes TEXT
);
CREATE INDEX IF NOT EXISTS idx_inputs_tx_id ON inputs(tx_id);
CREATE INDEX IF NOT EXISTS idx_inputs_box_id ON inputs(box_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_inputs_natural_key ON inputs(tx_id, box_id, input_index);

CREATE TABLE IF NOT EXISTS data_inputs (
	id INTEGER PRIMARY KEY,
	tx_id TEXT NOT NULL,
	box_id TEXT NOT NULL,
	input_index INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_data_inputs_tx_id ON data_inputs(tx_id);
CREATE INDEX IF NOT EXISTS idx_data_inputs_box_id ON data_inputs(box_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_data_inputs_natural_key ON data_inputs(tx_id, box_id, input_index);

CREATE TABLE IF NOT EXISTS address_stats (
	address TEXT PRIMARY KEY,
	tx_count INTEGER NOT NULL DEFAULT 0,
	balance INTEGER NOT NULL DEFAULT 0,
	first_seen_height INTEGER,
	last_seen_height INTEGER,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_address_stats_balance ON address_stats(balance DESC);

CREATE TABLE IF NOT EXISTS network_stats (
	timestamp INTEGER PRIMARY KEY,
	height INTEGER NOT NULL,
	difficulty TEXT NOT NULL,
	block_size INTEGER NOT NULL,
	block_coins INTEGER NOT NULL,
	total_coins INTEGER NOT NULL,
	hashrate REAL NOT NULL,
	block_time_avg REAL
);

CREATE TABLE IF NOT EXISTS sync_status (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	last_synced_height INTEGER NOT NULL DEFAULT -1,
	last_synced_block_id TEXT,
	last_sync_time INTEGER,
	is_syncing INTEGER NOT NULL DEFAULT 0,
	error_message TEXT
);
`

const tokenHoldersSchemaSQL = `
CREATE TABLE IF NOT EXISTS token_holders (
	token_id TEXT NOT NULL,
	address TEXT NOT NULL,
	balance INTEGER NOT NULL,
	PRIMARY KEY (token_id, address)
);
CREATE INDEX IF NOT EXISTS idx_token_holders_token_id ON token_holders(token_id);
`

const searchIndexSchemaSQL = `
CREATE TABLE IF NOT EXISTS search_index (
	kind TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (kind, key)
);
`

func (s *Store) migrate() error {
	ctx := context.Background()

	if _, err := s.writeDB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		)`); err != nil {
		return errors.Wrap(err, "creating _migrations table")
	}

	for id, m := range migrations {
		var applied int
		err := s.writeDB.QueryRowContext(ctx, "SELECT 1 FROM _migrations WHERE id = ?", id).Scan(&applied)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(err, "checking migration %s", m.name)
		}
		if applied == 1 {
			continue
		}

		if _, err := s.writeDB.ExecContext(ctx, m.sql); err != nil {
			return errors.Wrapf(err, "applying migration %s", m.name)
		}
		if _, err := s.writeDB.ExecContext(ctx, "INSERT INTO _migrations (id, name) VALUES (?, ?)", id, m.name); err != nil {
			return errors.Wrapf(err, "recording migration %s", m.name)
		}
	}

	return nil
}
