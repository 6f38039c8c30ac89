package buffered

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/ArionMiles/homeplotter/pkg/api"
	"github.com/ArionMiles/homeplotter/pkg/logging"
)

func tx(day int, text string) *api.Transaction {
	return &api.Transaction{Date: time.Date(2021, 1, day, 0, 0, 0, 0, time.UTC), Text: text, Account: "a"}
}

func texts(batches [][]*api.Transaction) [][]string {
	out := make([][]string, len(batches))
	for i, b := range batches {
		for _, t := range b {
			out[i] = append(out[i], t.Text)
		}
	}
	return out
}

func TestWriteBatches(t *testing.T) {
	input := []*api.Transaction{
		tx(1, "a"), tx(1, "b"), tx(2, "c"), tx(2, "d"), tx(2, "e"), tx(3, "f"),
	}

	tests := []struct {
		name     string
		boundary func(prev, next *api.Transaction) bool
		want     [][]string
	}{
		{"any cut", nil, [][]string{{"a", "b"}, {"c", "d"}, {"e", "f"}}},
		{"new day", NewDay, [][]string{{"a", "b"}, {"c", "d", "e"}, {"f"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var batches [][]*api.Transaction
			w := New(func(_ context.Context, b []*api.Transaction) error {
				batches = append(batches, b)
				return nil
			}, Config{BatchSize: 2, Boundary: tt.boundary}, logging.Discard())

			if err := w.Write(context.Background(), input); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			if err := w.Flush(context.Background()); err != nil {
				t.Fatalf("Flush() error = %v", err)
			}

			if got := texts(batches); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if got := w.Flushed(); got != len(input) {
				t.Errorf("got %d flushed, want %d", got, len(input))
			}
			if got := w.BufferLen(); got != 0 {
				t.Errorf("got %d buffered, want 0", got)
			}
		})
	}
}

func TestFlushError(t *testing.T) {
	errFlush := errors.New("disk full")
	w := New(func(context.Context, []*api.Transaction) error { return errFlush }, Config{BatchSize: 1}, logging.Discard())

	err := w.Write(context.Background(), []*api.Transaction{tx(1, "a"), tx(2, "b")})
	if !errors.Is(err, errFlush) {
		t.Errorf("got %v, want %v", err, errFlush)
	}
	if got := w.Flushed(); got != 0 {
		t.Errorf("got %d flushed, want 0", got)
	}
}

func TestWriteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := New(func(context.Context, []*api.Transaction) error { return nil }, Config{}, logging.Discard())
	if err := w.Write(ctx, []*api.Transaction{tx(1, "a")}); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want %v", err, context.Canceled)
	}
}
