package testutil

import (
	"path/filepath"
	"testing"

	"github.com/kuoruan/feed-session/internal"
)

// SampleBatch is a mutation batch building a root with one card and a
// pagination token
const SampleBatch = `context:
  user_initiated: true
operations:
  - structure: {content_id: root, kind: append}
    payload: {kind: feature, feature: {title: Top stories}}
  - structure: {content_id: card-1, parent_content_id: root, kind: append}
    payload: {kind: feature, feature: {title: First card, url: "https://example.com/1"}}
  - structure: {content_id: more, parent_content_id: root, kind: append}
    payload: {kind: token, token: {next_page_token: page-2}}
`

// NextPageBatch is the page behind the token of SampleBatch
const NextPageBatch = `- structure: {content_id: card-2, parent_content_id: root, kind: append}
  payload: {kind: feature, feature: {title: Second card}}
`

// CreateFeedFixture writes a feed database holding the HEAD built by
// SampleBatch plus an orphaned content row, and returns its path
func CreateFeedFixture(t *testing.T, dir string) string {
	t.Helper()
	dbPath := filepath.Join(dir, "feed.db")
	db, err := internal.OpenDatabase(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	InsertContent(t, db, "root", internal.Payload{Kind: internal.PayloadFeature, Feature: &internal.Feature{Title: "Top stories"}})
	InsertContent(t, db, "card-1", internal.Payload{Kind: internal.PayloadFeature, Feature: &internal.Feature{Title: "First card"}})
	InsertContent(t, db, "more", internal.Payload{Kind: internal.PayloadToken, Token: &internal.Token{NextPageToken: "page-2"}})
	InsertContent(t, db, "orphan", internal.Payload{Kind: internal.PayloadFeature, Feature: &internal.Feature{Title: "Gone"}})
	InsertJournal(t, db, internal.HeadSessionID,
		internal.NewAppend("root", ""),
		internal.NewAppend("card-1", "root"),
		internal.NewAppend("more", "root"),
	)
	return dbPath
}
