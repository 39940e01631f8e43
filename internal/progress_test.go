package internal

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestShowProgress(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		fn      func() error
		wantErr bool
	}{
		{name: "store opened", fn: func() error { return nil }},
		{name: "store unavailable", fn: func() error { return errors.New("locked") }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ShowProgress(ctx, "Opening feed store", tt.fn)
			if (err != nil) != tt.wantErr {
				t.Errorf("ShowProgress() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestShowProgressWithSteps(t *testing.T) {
	ctx := context.Background()
	failure := errors.New("gc failed")

	tests := []struct {
		name    string
		fail    int
		wantRan []string
		wantErr error
	}{
		{name: "all steps", fail: -1, wantRan: []string{"load", "restore", "gc"}},
		{name: "stops at failure", fail: 1, wantRan: []string{"load", "restore"}, wantErr: failure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ran []string
			var steps []ProgressStep
			for i, name := range []string{"load", "restore", "gc"} {
				i, name := i, name
				steps = append(steps, ProgressStep{Message: name, Fn: func() error {
					ran = append(ran, name)
					if i == tt.fail {
						return failure
					}
					return nil
				}})
			}

			err := ShowProgressWithSteps(ctx, steps)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ShowProgressWithSteps() error = %v, want %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(ran, tt.wantRan) {
				t.Errorf("ShowProgressWithSteps() ran = %v, want %v", ran, tt.wantRan)
			}
		})
	}
}

func TestShowProgressWithSteps_Empty(t *testing.T) {
	if err := ShowProgressWithSteps(context.Background(), nil); err != nil {
		t.Errorf("ShowProgressWithSteps() error = %v, want nil", err)
	}
}
