package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// maxQueryParams keeps IN (...) lists below SQLite's variable limit
const maxQueryParams = 500

// SQLiteStore persists content, semantic properties and session journals
type SQLiteStore struct {
	db  *sql.DB
	log componentLog
}

// NewSQLiteStore wraps an open database
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, log: newComponentLog("SQLiteStore")}
}

// OpenSQLiteStore opens a file-backed store at path
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteStore(db), nil
}

// OpenEphemeralSQLiteStore opens an in-memory store
func OpenEphemeralSQLiteStore() (*SQLiteStore, error) {
	db, err := OpenInMemoryDatabase()
	if err != nil {
		return nil, err
	}
	return NewSQLiteStore(db), nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetStreamStructures returns the journal of a session in log order
func (s *SQLiteStore) GetStreamStructures(ctx context.Context, sessionID string) ([]Operation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT content_id, parent_id, op FROM journal WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, &StoreError{Op: "read", Session: sessionID, Err: err}
	}
	defer rows.Close()

	var ops []Operation
	for rows.Next() {
		var op Operation
		var parent sql.NullString
		var kind string
		if err := rows.Scan(&op.ContentID, &parent, &kind); err != nil {
			return nil, &StoreError{Op: "read", Session: sessionID, Err: err}
		}
		if parent.Valid {
			op.ParentContentID = parent.String
		}
		if err := op.Kind.UnmarshalText([]byte(kind)); err != nil {
			return nil, &StoreError{Op: "read", Session: sessionID, Err: err}
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "read", Session: sessionID, Err: err}
	}
	return ops, nil
}

// GetPayloads returns the payloads stored for contentIDs in request order
func (s *SQLiteStore) GetPayloads(ctx context.Context, contentIDs []string) ([]PayloadWithID, error) {
	found := make(map[string]Payload, len(contentIDs))
	err := forEachChunk(contentIDs, func(chunk []string) error {
		query := fmt.Sprintf(`SELECT content_id, payload FROM content WHERE content_id IN (%s)`, placeholders(len(chunk)))
		rows, err := s.db.QueryContext(ctx, query, toArgs(chunk)...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			var raw []byte
			if err := rows.Scan(&id, &raw); err != nil {
				return err
			}
			var p Payload
			if err := json.Unmarshal(raw, &p); err != nil {
				s.log.warnf("Skipping undecodable payload %s: %v", id, err)
				continue
			}
			found[id] = p
		}
		return rows.Err()
	})
	if err != nil {
		return nil, &StoreError{Op: "read", Err: err}
	}

	result := make([]PayloadWithID, 0, len(found))
	for _, id := range contentIDs {
		if p, ok := found[id]; ok {
			result = append(result, PayloadWithID{ContentID: id, Payload: p})
		}
	}
	return result, nil
}

// GetSemanticProperties returns stored semantic properties keyed by content id
func (s *SQLiteStore) GetSemanticProperties(ctx context.Context, contentIDs []string) (map[string][]byte, error) {
	found := make(map[string][]byte, len(contentIDs))
	err := forEachChunk(contentIDs, func(chunk []string) error {
		query := fmt.Sprintf(`SELECT content_id, data FROM semantic_properties WHERE content_id IN (%s)`, placeholders(len(chunk)))
		rows, err := s.db.QueryContext(ctx, query, toArgs(chunk)...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			var data []byte
			if err := rows.Scan(&id, &data); err != nil {
				return err
			}
			found[id] = data
		}
		return rows.Err()
	})
	if err != nil {
		return nil, &StoreError{Op: "read", Err: err}
	}
	return found, nil
}

// GetAllSessions lists the ids of every non-HEAD journal
func (s *SQLiteStore) GetAllSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT session_id FROM journal WHERE session_id != ? ORDER BY session_id`, HeadSessionID)
	if err != nil {
		return nil, &StoreError{Op: "read", Err: err}
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &StoreError{Op: "read", Err: err}
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RemoveSession deletes the journal of a session
func (s *SQLiteStore) RemoveSession(ctx context.Context, sessionID string) error {
	if sessionID == HeadSessionID {
		return &StoreError{Op: "remove", Session: sessionID, Err: fmt.Errorf("HEAD cannot be removed, clear it instead")}
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM journal WHERE session_id = ?`, sessionID); err != nil {
		return &StoreError{Op: "remove", Session: sessionID, Err: err}
	}
	return nil
}

// ClearHead drops the HEAD journal
func (s *SQLiteStore) ClearHead(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM journal WHERE session_id = ?`, HeadSessionID); err != nil {
		return &StoreError{Op: "clear", Session: HeadSessionID, Err: err}
	}
	return nil
}

// EditSession starts a journal append for sessionID
func (s *SQLiteStore) EditSession(sessionID string) SessionEditor {
	return &sqliteSessionEditor{store: s, sessionID: sessionID}
}

// EditContent starts a payload write
func (s *SQLiteStore) EditContent() ContentEditor {
	return &sqliteContentEditor{store: s}
}

// EditSemanticProperties starts a semantic properties write
func (s *SQLiteStore) EditSemanticProperties() SemanticPropertiesEditor {
	return &sqliteSemanticEditor{store: s}
}

// CollectGarbage deletes content and semantic properties that are neither
// reserved nor reachable. Shared state payloads are kept.
func (s *SQLiteStore) CollectGarbage(ctx context.Context, keep map[string]struct{}) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var doomed []string
	rows, err := tx.QueryContext(ctx, `SELECT content_id, kind FROM content`)
	if err != nil {
		return 0, err
	}
	for rows.Next() {
		var id, kind string
		if err := rows.Scan(&id, &kind); err != nil {
			rows.Close()
			return 0, err
		}
		if _, ok := keep[id]; ok || PayloadKind(kind) == PayloadSharedState {
			continue
		}
		doomed = append(doomed, id)
	}
	rows.Close()

	var doomedSemantic []string
	rows, err = tx.QueryContext(ctx, `SELECT content_id FROM semantic_properties`)
	if err != nil {
		return 0, err
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		if _, ok := keep[id]; !ok {
			doomedSemantic = append(doomedSemantic, id)
		}
	}
	rows.Close()

	for _, id := range doomed {
		if _, err := tx.ExecContext(ctx, `DELETE FROM content WHERE content_id = ?`, id); err != nil {
			return 0, err
		}
	}
	for _, id := range doomedSemantic {
		if _, err := tx.ExecContext(ctx, `DELETE FROM semantic_properties WHERE content_id = ?`, id); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(doomed) + len(doomedSemantic), nil
}

// CopyTo replicates every table into dst
func (s *SQLiteStore) CopyTo(ctx context.Context, dst *SQLiteStore) error {
	tx, err := dst.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	copies := []struct {
		query  string
		insert string
		cols   int
	}{
		{`SELECT content_id, kind, payload FROM content`, `INSERT OR REPLACE INTO content (content_id, kind, payload) VALUES (?, ?, ?)`, 3},
		{`SELECT content_id, data FROM semantic_properties`, `INSERT OR REPLACE INTO semantic_properties (content_id, data) VALUES (?, ?)`, 2},
		{`SELECT session_id, seq, content_id, parent_id, op FROM journal`, `INSERT OR REPLACE INTO journal (session_id, seq, content_id, parent_id, op) VALUES (?, ?, ?, ?, ?)`, 5},
	}
	for _, c := range copies {
		rows, err := s.db.QueryContext(ctx, c.query)
		if err != nil {
			return err
		}
		for rows.Next() {
			values := make([]interface{}, c.cols)
			ptrs := make([]interface{}, c.cols)
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				rows.Close()
				return err
			}
			if _, err := tx.ExecContext(ctx, c.insert, values...); err != nil {
				rows.Close()
				return err
			}
		}
		rows.Close()
	}
	return tx.Commit()
}

type sqliteSessionEditor struct {
	store     *SQLiteStore
	sessionID string
	ops       []Operation
}

func (e *sqliteSessionEditor) Add(op Operation) {
	e.ops = append(e.ops, op)
}

func (e *sqliteSessionEditor) Commit(ctx context.Context) error {
	if len(e.ops) == 0 {
		return nil
	}
	tx, err := e.store.db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Op: "commit", Session: e.sessionID, Err: err}
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM journal WHERE session_id = ?`, e.sessionID).Scan(&seq); err != nil {
		return &StoreError{Op: "commit", Session: e.sessionID, Err: err}
	}

	for _, op := range e.ops {
		seq++
		var parent *string
		if op.HasParent() {
			p := op.ParentContentID
			parent = &p
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO journal (session_id, seq, content_id, parent_id, op) VALUES (?, ?, ?, ?, ?)`,
			e.sessionID, seq, op.ContentID, parent, op.Kind.String()); err != nil {
			return &StoreError{Op: "commit", Session: e.sessionID, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "commit", Session: e.sessionID, Err: err}
	}
	e.ops = nil
	return nil
}

type sqliteContentEditor struct {
	store    *SQLiteStore
	ids      []string
	payloads []Payload
}

func (e *sqliteContentEditor) Add(contentID string, payload Payload) {
	e.ids = append(e.ids, contentID)
	e.payloads = append(e.payloads, payload)
}

func (e *sqliteContentEditor) Commit(ctx context.Context) error {
	if len(e.ids) == 0 {
		return nil
	}
	tx, err := e.store.db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Op: "commit", Err: err}
	}
	defer tx.Rollback()

	for i, id := range e.ids {
		raw, err := json.Marshal(e.payloads[i])
		if err != nil {
			return &StoreError{Op: "commit", Err: fmt.Errorf("marshal payload %s: %w", id, err)}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO content (content_id, kind, payload) VALUES (?, ?, ?)`,
			id, string(e.payloads[i].Kind), raw); err != nil {
			return &StoreError{Op: "commit", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "commit", Err: err}
	}
	e.ids, e.payloads = nil, nil
	return nil
}

type sqliteSemanticEditor struct {
	store *SQLiteStore
	ids   []string
	data  [][]byte
}

func (e *sqliteSemanticEditor) Add(contentID string, data []byte) {
	e.ids = append(e.ids, contentID)
	e.data = append(e.data, data)
}

func (e *sqliteSemanticEditor) Commit(ctx context.Context) error {
	if len(e.ids) == 0 {
		return nil
	}
	tx, err := e.store.db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Op: "commit", Err: err}
	}
	defer tx.Rollback()

	for i, id := range e.ids {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO semantic_properties (content_id, data) VALUES (?, ?)`,
			id, e.data[i]); err != nil {
			return &StoreError{Op: "commit", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "commit", Err: err}
	}
	e.ids, e.data = nil, nil
	return nil
}

func forEachChunk(ids []string, fn func(chunk []string) error) error {
	for start := 0; start < len(ids); start += maxQueryParams {
		end := start + maxQueryParams
		if end > len(ids) {
			end = len(ids)
		}
		if err := fn(ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(ids []string) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// TableCounts holds row counts of the feed tables
type TableCounts struct {
	Content            int `json:"content"`
	SemanticProperties int `json:"semantic_properties"`
	JournalEntries     int `json:"journal_entries"`
	Journals           int `json:"journals"`
}

// Counts returns the number of rows in each table
func (s *SQLiteStore) Counts(ctx context.Context) (TableCounts, error) {
	var c TableCounts
	queries := []struct {
		query string
		dst   *int
	}{
		{`SELECT COUNT(*) FROM content`, &c.Content},
		{`SELECT COUNT(*) FROM semantic_properties`, &c.SemanticProperties},
		{`SELECT COUNT(*) FROM journal`, &c.JournalEntries},
		{`SELECT COUNT(DISTINCT session_id) FROM journal`, &c.Journals},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dst); err != nil {
			return c, &StoreError{Op: "count", Err: err}
		}
	}
	return c, nil
}
