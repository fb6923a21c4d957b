package store

// Schema DDL for the in-memory SQLite index. The JSONL logs stay the
// source of truth; these tables exist only for filtered queries and are
// rebuilt from the logs on every OpenIndex.
const (
	createSubjects = `CREATE TABLE subjects (
    subject_id TEXT PRIMARY KEY,
    sex TEXT,
    mass_grams REAL,
    registered_at TEXT NOT NULL
);`

	createAssignments = `CREATE TABLE assignments (
    subject_id TEXT NOT NULL,
    stage TEXT NOT NULL,
    category TEXT NOT NULL,
    forced INTEGER,
    assigned_at TEXT NOT NULL,
    PRIMARY KEY (subject_id, stage)
);`

	createRegistry = `CREATE TABLE registry (
    rowid_seq INTEGER PRIMARY KEY AUTOINCREMENT,
    code TEXT NOT NULL,
    subject_id TEXT NOT NULL,
    stage TEXT NOT NULL,
    session INTEGER,
    status TEXT NOT NULL,
    issued_at TEXT NOT NULL,
    used_at TEXT,
    receipt_digest TEXT
);`

	createReceipts = `CREATE TABLE receipts (
    receipt_id TEXT PRIMARY KEY,
    subject_id TEXT NOT NULL,
    stage TEXT NOT NULL,
    session INTEGER,
    photo_digest TEXT,
    logged_at TEXT NOT NULL
);`

	createAudit = `CREATE TABLE audit (
    seq INTEGER NOT NULL,
    event_id TEXT NOT NULL,
    ts TEXT NOT NULL,
    actor_root TEXT NOT NULL,
    action TEXT NOT NULL,
    payload TEXT
);`
)

// schemaDDL lists every table created by OpenIndex.
var schemaDDL = []string{
	createSubjects,
	createAssignments,
	createRegistry,
	createReceipts,
	createAudit,
}
