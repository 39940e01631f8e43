package cmd

import (
	"strings"
	"testing"

	"github.com/kuoruan/feed-session/internal"
	"github.com/kuoruan/feed-session/testutil"
)

func TestCommitCommand(t *testing.T) {
	tests := []struct {
		name     string
		batch    string
		extra    []string
		want     []string
		wantErr  string
		skipFile bool
	}{
		{
			name:  "yaml batch",
			batch: testutil.SampleBatch,
			want:  []string{"Committed 3 operation(s)", "HEAD size: 3"},
		},
		{
			name: "json list",
			batch: `[{"structure": {"content_id": "root", "kind": "append"}, "payload": {"kind": "feature", "feature": {"title": "Root"}}},
 {"structure": {"content_id": "a", "parent_content_id": "root", "kind": "append"}, "payload": {"kind": "feature", "feature": {"title": "A"}}}]`,
			want: []string{"Committed 2 operation(s)", "HEAD size: 2"},
		},
		{
			name:  "invalid operations skipped",
			batch: "- structure: {content_id: root, kind: append}\n- payload: {kind: feature}\n",
			want:  []string{"Committed 2 operation(s)", "Skipped 2 invalid operation(s)", "HEAD size: 0"},
		},
		{
			name:    "failed request",
			batch:   "error: upstream timeout\n",
			want:    []string{"no_cards_error", "upstream timeout"},
			wantErr: "mutation failed",
		},
		{
			name:    "empty batch",
			batch:   "",
			wantErr: "is empty",
		},
		{
			name:     "missing file",
			skipFile: true,
			wantErr:  "read batch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, db := feedEnv(t)
			path := dir + "/absent.yaml"
			if !tt.skipFile {
				path = testutil.WriteFile(t, dir, "batch.yaml", []byte(tt.batch))
			}

			got, err := runCommand(t, append([]string{"commit", path, "--db", db}, tt.extra...)...)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("commit error = %v, want %q", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("commit error = %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("commit output = %q, want it to contain %q", got, want)
				}
			}
		})
	}
}

func TestCommitCommand_Continuation(t *testing.T) {
	dir, db := feedEnv(t)
	commitSample(t, dir, db)

	next := testutil.WriteFile(t, dir, "next.yaml", []byte(testutil.NextPageBatch))
	got, err := runCommand(t, "commit", next, "--db", db, "--continuation", "more")
	if err != nil {
		t.Fatalf("commit error = %v", err)
	}
	// the token is retired and card-2 appended
	if !strings.Contains(got, "HEAD size: 3") {
		t.Errorf("commit output = %q, want HEAD size: 3", got)
	}

	got, err = runCommand(t, "show", "--db", db, "--no-cache")
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	if !strings.Contains(got, "Second card") || strings.Contains(got, "page-2") {
		t.Errorf("show output = %q, want card-2 and no token", got)
	}
}

func TestCommitCommand_StaleContinuationSkipsHead(t *testing.T) {
	dir, db := feedEnv(t)
	commitSample(t, dir, db)

	next := testutil.WriteFile(t, dir, "next.yaml", []byte(testutil.NextPageBatch))
	got, err := runCommand(t, "commit", next, "--db", db, "--continuation", "unknown-token")
	if err != nil {
		t.Fatalf("commit error = %v", err)
	}
	if !strings.Contains(got, "HEAD size: 3") {
		t.Errorf("commit output = %q, want HEAD unchanged", got)
	}

	got, err = runCommand(t, "show", "--db", db, "--no-cache")
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	if strings.Contains(got, "Second card") {
		t.Errorf("show output = %q, want stale page ignored", got)
	}
}

func TestReadMutationBatch_Stdin(t *testing.T) {
	batch, err := readMutationBatch(strings.NewReader(testutil.SampleBatch), "-")
	if err != nil {
		t.Fatalf("readMutationBatch() error = %v", err)
	}
	if !batch.Context.UserInitiated || len(batch.Operations) != 3 {
		t.Errorf("readMutationBatch() got = %+v", batch)
	}
	if batch.Operations[2].Payload.Kind != internal.PayloadToken {
		t.Errorf("readMutationBatch() third payload = %v, want token", batch.Operations[2].Payload.Kind)
	}
}
