package sqlite

import "database/sql"

// schema sets up the ledger tables. It runs on startup and is idempotent.
// Money columns hold decimal strings; dates are YYYY-MM-DD and times HH:MM:SS.
const schema = `
CREATE TABLE IF NOT EXISTS participants (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    position INTEGER NOT NULL,
    excluded INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS payment_methods (
    name TEXT PRIMARY KEY,
    participant_id TEXT NOT NULL,
    FOREIGN KEY (participant_id) REFERENCES participants(id)
);

CREATE TABLE IF NOT EXISTS ignored_payments (
    name TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS stores (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    address TEXT NOT NULL,
    city TEXT NOT NULL,
    postal_code TEXT NOT NULL,
    UNIQUE (name, address, postal_code)
);

CREATE TABLE IF NOT EXISTS receipts (
    id TEXT PRIMARY KEY,
    store_id TEXT NOT NULL,
    receipt_number TEXT NOT NULL,
    date TEXT NOT NULL,
    time TEXT NOT NULL,
    final_price TEXT NOT NULL,
    total_discounts TEXT NOT NULL,
    currency TEXT NOT NULL,
    payment_name TEXT NOT NULL,
    counted INTEGER NOT NULL DEFAULT 0,
    settled INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    UNIQUE (store_id, receipt_number, date, time),
    FOREIGN KEY (store_id) REFERENCES stores(id)
);

CREATE TABLE IF NOT EXISTS manual_expenses (
    id TEXT PRIMARY KEY,
    date TEXT NOT NULL,
    description TEXT NOT NULL,
    total_cost TEXT NOT NULL,
    payer_id TEXT NOT NULL,
    category TEXT NOT NULL,
    counted INTEGER NOT NULL DEFAULT 0,
    settled INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (payer_id) REFERENCES participants(id)
);

CREATE TABLE IF NOT EXISTS line_items (
    id TEXT PRIMARY KEY,
    receipt_id TEXT,
    manual_expense_id TEXT,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    quantity TEXT NOT NULL,
    tax_type TEXT NOT NULL,
    unit_price_before TEXT NOT NULL,
    total_price_before TEXT NOT NULL,
    unit_discount TEXT NOT NULL,
    total_discount TEXT NOT NULL,
    unit_after_discount TEXT NOT NULL,
    total_after_discount TEXT NOT NULL,
    CHECK ((receipt_id IS NULL) <> (manual_expense_id IS NULL)),
    FOREIGN KEY (receipt_id) REFERENCES receipts(id),
    FOREIGN KEY (manual_expense_id) REFERENCES manual_expenses(id)
);

CREATE TABLE IF NOT EXISTS shares (
    item_id TEXT NOT NULL,
    participant_id TEXT NOT NULL,
    percentage TEXT NOT NULL,
    PRIMARY KEY (item_id, participant_id),
    FOREIGN KEY (item_id) REFERENCES line_items(id) ON DELETE CASCADE,
    FOREIGN KEY (participant_id) REFERENCES participants(id)
);

CREATE TABLE IF NOT EXISTS static_shares (
    id TEXT PRIMARY KEY,
    item_name TEXT NOT NULL UNIQUE,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS static_share_percentages (
    static_share_id TEXT NOT NULL,
    participant_id TEXT NOT NULL,
    percentage TEXT NOT NULL,
    PRIMARY KEY (static_share_id, participant_id),
    FOREIGN KEY (static_share_id) REFERENCES static_shares(id) ON DELETE CASCADE,
    FOREIGN KEY (participant_id) REFERENCES participants(id)
);

CREATE TABLE IF NOT EXISTS static_share_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    static_share_id TEXT NOT NULL,
    participant_id TEXT NOT NULL,
    old_percentage TEXT,
    new_percentage TEXT NOT NULL,
    changed_by TEXT NOT NULL,
    reason TEXT NOT NULL,
    changed_at INTEGER NOT NULL,
    FOREIGN KEY (static_share_id) REFERENCES static_shares(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS settlements (
    id TEXT PRIMARY KEY,
    payer_id TEXT NOT NULL,
    debtor_id TEXT NOT NULL,
    amount TEXT NOT NULL,
    note TEXT,
    created_at INTEGER NOT NULL,
    finalized_by TEXT NOT NULL,
    finalized_at INTEGER NOT NULL,
    CHECK (payer_id <> debtor_id),
    FOREIGN KEY (payer_id) REFERENCES participants(id),
    FOREIGN KEY (debtor_id) REFERENCES participants(id)
);

CREATE TABLE IF NOT EXISTS settlement_items (
    settlement_id TEXT NOT NULL,
    receipt_id TEXT UNIQUE,
    manual_expense_id TEXT UNIQUE,
    CHECK ((receipt_id IS NULL) <> (manual_expense_id IS NULL)),
    FOREIGN KEY (settlement_id) REFERENCES settlements(id),
    FOREIGN KEY (receipt_id) REFERENCES receipts(id),
    FOREIGN KEY (manual_expense_id) REFERENCES manual_expenses(id)
);

CREATE TABLE IF NOT EXISTS ledger_revision (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    revision INTEGER NOT NULL
);
INSERT OR IGNORE INTO ledger_revision (id, revision) VALUES (1, 0);

CREATE INDEX IF NOT EXISTS idx_receipts_settled ON receipts(settled);
CREATE INDEX IF NOT EXISTS idx_manual_expenses_settled ON manual_expenses(settled);
CREATE INDEX IF NOT EXISTS idx_line_items_receipt_id ON line_items(receipt_id);
CREATE INDEX IF NOT EXISTS idx_line_items_manual_expense_id ON line_items(manual_expense_id);
CREATE INDEX IF NOT EXISTS idx_shares_item_id ON shares(item_id);
CREATE INDEX IF NOT EXISTS idx_settlement_items_settlement_id ON settlement_items(settlement_id);
CREATE INDEX IF NOT EXISTS idx_static_share_history_share_id ON static_share_history(static_share_id);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
