package internal

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// SessionIndexVersion is bumped when the persisted index layout changes
const SessionIndexVersion = "1.0"

// SessionIndexMetadata stores metadata about the persisted index
type SessionIndexMetadata struct {
	Version   string    `json:"version" yaml:"version"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// SessionIndex is the YAML document stored in the reserved session payload
type SessionIndex struct {
	Sessions []SessionRecord     `json:"sessions" yaml:"sessions"`
	Metadata SessionIndexMetadata `json:"metadata" yaml:"metadata"`
}

// EncodeSessionIndex wraps records in a session set payload
func EncodeSessionIndex(records []SessionRecord, now time.Time) (Payload, error) {
	index := SessionIndex{
		Sessions: records,
		Metadata: SessionIndexMetadata{Version: SessionIndexVersion, UpdatedAt: now},
	}
	data, err := yaml.Marshal(&index)
	if err != nil {
		return Payload{}, fmt.Errorf("failed to marshal session index: %w", err)
	}
	return Payload{Kind: PayloadSessionSet, Data: data}, nil
}

// DecodeSessionIndex reads the records out of a session set payload
func DecodeSessionIndex(p Payload) (*SessionIndex, error) {
	if p.Kind != PayloadSessionSet {
		return nil, fmt.Errorf("payload kind %q is not a session set", p.Kind)
	}
	var index SessionIndex
	if err := yaml.Unmarshal(p.Data, &index); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session index: %w", err)
	}
	return &index, nil
}

// LoadSessionIndex reads the persisted index. A missing index is empty.
func LoadSessionIndex(ctx context.Context, store Store) (*SessionIndex, error) {
	payloads, err := store.GetPayloads(ctx, []string{SessionIndexContentID})
	if err != nil {
		return nil, err
	}
	if len(payloads) == 0 {
		return &SessionIndex{}, nil
	}
	return DecodeSessionIndex(payloads[0].Payload)
}

// SaveSessionIndex persists records under the reserved session payload id
func SaveSessionIndex(ctx context.Context, store Store, records []SessionRecord, now time.Time) error {
	payload, err := EncodeSessionIndex(records, now)
	if err != nil {
		return err
	}
	editor := store.EditContent()
	editor.Add(SessionIndexContentID, payload)
	return editor.Commit(ctx)
}
