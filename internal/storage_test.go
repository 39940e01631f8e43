package internal

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSQLiteStore_JournalRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestBackend(t)

	want := []Operation{
		NewAppend("root", ""),
		NewAppend("a", "root"),
		NewRemove("a", "root"),
	}
	commitJournal(t, store, "s1", want[:2]...)
	commitJournal(t, store, "s1", want[2])

	got, err := store.GetStreamStructures(ctx, "s1")
	if err != nil {
		t.Fatalf("GetStreamStructures() error = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("GetStreamStructures() got = %v, want %v", got, want)
	}

	missing, err := store.GetStreamStructures(ctx, "nobody")
	if err != nil || len(missing) != 0 {
		t.Errorf("GetStreamStructures(nobody) got = %v, %v, want empty", missing, err)
	}
}

func TestSQLiteStore_GetPayloadsKeepsRequestOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestBackend(t)
	commitFeatures(t, store, "a", "b", "c")

	got, err := store.GetPayloads(ctx, []string{"c", "missing", "a"})
	if err != nil {
		t.Fatalf("GetPayloads() error = %v", err)
	}
	var ids []string
	for _, p := range got {
		ids = append(ids, p.ContentID)
	}
	if !reflect.DeepEqual(ids, []string{"c", "a"}) {
		t.Errorf("GetPayloads() ids = %v, want [c a]", ids)
	}
	if got[0].Payload.Feature == nil || got[0].Payload.Feature.Title != "c" {
		t.Errorf("GetPayloads() payload = %+v, want feature c", got[0].Payload)
	}
}

func TestSQLiteStore_GetPayloadsChunksLargeRequests(t *testing.T) {
	ctx := context.Background()
	store := newTestBackend(t)

	ids := make([]string, maxQueryParams+10)
	for i := range ids {
		ids[i] = fmt.Sprintf("c%04d", i)
	}
	commitFeatures(t, store, ids...)

	got, err := store.GetPayloads(ctx, ids)
	if err != nil {
		t.Fatalf("GetPayloads() error = %v", err)
	}
	if len(got) != len(ids) {
		t.Errorf("GetPayloads() got %d payloads, want %d", len(got), len(ids))
	}
}

func TestSQLiteStore_SessionsAndClearHead(t *testing.T) {
	ctx := context.Background()
	store := newTestBackend(t)
	commitJournal(t, store, HeadSessionID, NewAppend("root", ""))
	commitJournal(t, store, "b", NewAppend("root", ""))
	commitJournal(t, store, "a", NewAppend("root", ""))

	sessions, err := store.GetAllSessions(ctx)
	if err != nil {
		t.Fatalf("GetAllSessions() error = %v", err)
	}
	if !reflect.DeepEqual(sessions, []string{"a", "b"}) {
		t.Errorf("GetAllSessions() got = %v, want [a b]", sessions)
	}

	var storeErr *StoreError
	if err := store.RemoveSession(ctx, HeadSessionID); !errors.As(err, &storeErr) {
		t.Errorf("RemoveSession(HEAD) error = %v, want StoreError", err)
	}
	if err := store.RemoveSession(ctx, "a"); err != nil {
		t.Fatalf("RemoveSession() error = %v", err)
	}
	if err := store.ClearHead(ctx); err != nil {
		t.Fatalf("ClearHead() error = %v", err)
	}

	head, _ := store.GetStreamStructures(ctx, HeadSessionID)
	if len(head) != 0 {
		t.Errorf("HEAD journal after ClearHead() = %v, want empty", head)
	}
	counts, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	if counts.Journals != 1 || counts.JournalEntries != 1 {
		t.Errorf("Counts() got = %+v, want one journal with one entry", counts)
	}
}

func TestSQLiteStore_CollectGarbage(t *testing.T) {
	ctx := context.Background()
	store := newTestBackend(t)
	commitFeatures(t, store, "keep", "drop")

	editor := store.EditContent()
	editor.Add("shared", Payload{Kind: PayloadSharedState, Data: []byte("x")})
	if err := editor.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	semantic := store.EditSemanticProperties()
	semantic.Add("keep", []byte("k"))
	semantic.Add("drop", []byte("d"))
	if err := semantic.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	removed, err := store.CollectGarbage(ctx, map[string]struct{}{"keep": {}})
	if err != nil {
		t.Fatalf("CollectGarbage() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("CollectGarbage() removed = %d, want 2", removed)
	}

	counts, _ := store.Counts(ctx)
	if counts.Content != 2 || counts.SemanticProperties != 1 {
		t.Errorf("Counts() got = %+v, want 2 content and 1 semantic row", counts)
	}
}

func TestSQLiteStore_CopyTo(t *testing.T) {
	ctx := context.Background()
	src, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "feed.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore() error = %v", err)
	}
	defer src.Close()

	commitJournal(t, src, HeadSessionID, NewAppend("root", ""), NewAppend("a", "root"))
	commitFeatures(t, src, "root", "a")

	dst := newTestBackend(t)
	if err := src.CopyTo(ctx, dst); err != nil {
		t.Fatalf("CopyTo() error = %v", err)
	}

	ops, err := dst.GetStreamStructures(ctx, HeadSessionID)
	if err != nil || len(ops) != 2 {
		t.Errorf("copied journal = %v, %v, want 2 operations", ops, err)
	}
	payloads, _ := dst.GetPayloads(ctx, []string{"root", "a"})
	if len(payloads) != 2 {
		t.Errorf("copied payloads = %d, want 2", len(payloads))
	}
}

func TestFeedStore_SwitchToEphemeralMode(t *testing.T) {
	ctx := context.Background()
	backend, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "feed.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore() error = %v", err)
	}
	store := NewFeedStore(backend, NewContentCache())
	defer store.Close()

	commitJournal(t, store, HeadSessionID, NewAppend("root", ""))
	store.SwitchToEphemeralMode(ctx)
	store.SwitchToEphemeralMode(ctx)

	if !store.IsEphemeralMode() {
		t.Fatal("IsEphemeralMode() got = false, want true")
	}
	commitJournal(t, store, HeadSessionID, NewAppend("a", "root"))

	ops, _ := store.GetStreamStructures(ctx, HeadSessionID)
	if len(ops) != 2 {
		t.Errorf("ephemeral journal = %v, want 2 operations", ops)
	}
	persisted, _ := backend.GetStreamStructures(ctx, HeadSessionID)
	if len(persisted) != 1 {
		t.Errorf("persistent journal = %v, want 1 operation", persisted)
	}
	if got := store.Stats().EphemeralSwitches; got != 1 {
		t.Errorf("Stats().EphemeralSwitches got = %v, want 1", got)
	}
}
