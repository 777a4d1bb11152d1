package mosaic

import (
	"errors"
	"fmt"
	"testing"
)

func makeDocs(n int) []Document {
	docs := make([]Document, n)
	for i := range docs {
		docs[i] = NewDocument(uint32(i+1), fmt.Sprintf("/corpus/img_%03d.png", i))
	}
	return docs
}

func TestPartitionDocuments(t *testing.T) {
	tests := []struct {
		n           int
		batchSize   int
		wantBatches int
		wantLast    int
	}{
		{n: 10, batchSize: 3, wantBatches: 4, wantLast: 1},
		{n: 10, batchSize: 5, wantBatches: 2, wantLast: 5},
		{n: 10, batchSize: 10, wantBatches: 1, wantLast: 10},
		{n: 10, batchSize: 100, wantBatches: 1, wantLast: 10},
		{n: 1, batchSize: 1, wantBatches: 1, wantLast: 1},
		{n: 0, batchSize: 4, wantBatches: 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d/batch=%d", tt.n, tt.batchSize), func(t *testing.T) {
			docs := makeDocs(tt.n)
			batches, err := PartitionDocuments(docs, tt.batchSize)
			if err != nil {
				t.Fatalf("PartitionDocuments: %v", err)
			}
			if len(batches) != tt.wantBatches {
				t.Fatalf("got %d batches, want %d", len(batches), tt.wantBatches)
			}
			if tt.wantBatches > 0 {
				if got := len(batches[len(batches)-1]); got != tt.wantLast {
					t.Errorf("last batch has %d documents, want %d", got, tt.wantLast)
				}
			}

			// Every document exactly once, in order.
			var flat []Document
			for _, b := range batches {
				if len(b) == 0 || len(b) > tt.batchSize {
					t.Errorf("batch size %d out of range (1, %d]", len(b), tt.batchSize)
				}
				flat = append(flat, b...)
			}
			if len(flat) != tt.n {
				t.Fatalf("batches cover %d documents, want %d", len(flat), tt.n)
			}
			for i, d := range flat {
				if d.ID() != docs[i].ID() {
					t.Fatalf("position %d holds document %d, want %d", i, d.ID(), docs[i].ID())
				}
			}
		})
	}
}

func TestPartitionDocumentsInvalidBatchSize(t *testing.T) {
	for _, batchSize := range []int{0, -1, -100} {
		if _, err := PartitionDocuments(makeDocs(5), batchSize); !errors.Is(err, ErrInvalidBatchSize) {
			t.Errorf("batchSize=%d: got %v, want ErrInvalidBatchSize", batchSize, err)
		}
	}
}
