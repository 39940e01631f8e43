package testutil

import (
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/kuoruan/feed-session/internal"
)

// CreateInMemoryDB creates an in-memory feed database for testing
func CreateInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := internal.OpenInMemoryDatabase()
	if err != nil {
		t.Fatalf("Failed to create in-memory database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// InsertContent stores a payload row
func InsertContent(t *testing.T, db *sql.DB, contentID string, payload internal.Payload) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal payload %s: %v", contentID, err)
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO content (content_id, kind, payload) VALUES (?, ?, ?)`,
		contentID, string(payload.Kind), raw); err != nil {
		t.Fatalf("Failed to insert content %s: %v", contentID, err)
	}
}

// InsertJournal appends ops to the journal of sessionID
func InsertJournal(t *testing.T, db *sql.DB, sessionID string, ops ...internal.Operation) {
	t.Helper()
	var seq int64
	if err := db.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM journal WHERE session_id = ?`, sessionID).Scan(&seq); err != nil {
		t.Fatalf("Failed to read journal of %s: %v", sessionID, err)
	}
	for _, op := range ops {
		seq++
		var parent interface{}
		if op.HasParent() {
			parent = op.ParentContentID
		}
		if _, err := db.Exec(`INSERT INTO journal (session_id, seq, content_id, parent_id, op) VALUES (?, ?, ?, ?, ?)`,
			sessionID, seq, op.ContentID, parent, op.Kind.String()); err != nil {
			t.Fatalf("Failed to insert journal entry %s: %v", op, err)
		}
	}
}

// CountRows returns the number of rows in table
func CountRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("Failed to count %s: %v", table, err)
	}
	return n
}
