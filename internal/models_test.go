package internal

import (
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParseOperationKind(t *testing.T) {
	tests := []struct {
		in      string
		want    OperationKind
		wantErr bool
	}{
		{in: "append", want: OperationAppend},
		{in: "update_or_append", want: OperationAppend},
		{in: " Remove ", want: OperationRemove},
		{in: "clear_all", want: OperationClearAll},
		{in: "clear", want: OperationClearAll},
		{in: "replace", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOperationKind(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseOperationKind() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseOperationKind() got = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOperation_String(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{NewAppend("a", "root"), "append(a, root)"},
		{NewAppend("root", ""), "append(root)"},
		{NewRemove("a", "root"), "remove(a, root)"},
		{NewClearAll(), "clear_all()"},
		{Operation{ContentID: "x", Kind: OperationKind(9)}, "unknown(x)"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("String() got = %v, want %v", got, tt.want)
		}
	}
}

func TestDataOperation_DecodeBatch(t *testing.T) {
	doc := `
- structure: {content_id: root, kind: append}
  payload: {kind: feature, feature: {title: Top stories}}
- structure: {content_id: tok, parent_content_id: root, kind: append}
  payload: {kind: token, token: {next_page_token: p2}}
- structure: {content_id: old, parent_content_id: root, kind: remove}
`
	var batch []DataOperation
	if err := yaml.Unmarshal([]byte(doc), &batch); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("batch length got = %v, want 3", len(batch))
	}
	if batch[0].Payload.Feature.Title != "Top stories" {
		t.Errorf("feature title got = %v, want Top stories", batch[0].Payload.Feature.Title)
	}
	if batch[1].Payload.Token.NextPageToken != "p2" || batch[1].Structure.ParentContentID != "root" {
		t.Errorf("token operation got = %+v", batch[1])
	}
	if batch[2].Structure.Kind != OperationRemove || batch[2].Payload != nil {
		t.Errorf("remove operation got = %+v", batch[2])
	}

	raw, err := json.Marshal(batch[2].Structure)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if want := `{"content_id":"old","parent_content_id":"root","kind":"remove"}`; string(raw) != want {
		t.Errorf("json.Marshal() got = %s, want %s", raw, want)
	}
}

func TestMutationContext_NilSafe(t *testing.T) {
	var mctx *MutationContext
	if mctx.continuationToken() != nil || mctx.requestingSessionID() != "" || mctx.userInitiated() {
		t.Error("nil MutationContext accessors should return zero values")
	}
}

func TestResult(t *testing.T) {
	if !Success().IsSuccess() {
		t.Error("Success().IsSuccess() got = false, want true")
	}
	if Failure(ErrNotInitialized).IsSuccess() {
		t.Error("Failure().IsSuccess() got = true, want false")
	}
}
