package sync

import (
	"context"
	"errors"
	"testing"

	"supplier-sync/internal/supplier"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkSKUs(t *testing.T) {
	skus := make([]string, 250)
	for i := range skus {
		skus[i] = "S"
	}

	chunks := chunkSKUs(skus, 100)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 100)
	assert.Len(t, chunks[1], 100)
	assert.Len(t, chunks[2], 50)

	assert.Nil(t, chunkSKUs(nil, 100))
	assert.Len(t, chunkSKUs([]string{"a"}, 100), 1)
}

type chunkRecorder struct {
	chunks  [][]string
	records map[string]supplier.ProductRecord
	err     error
}

func (c *chunkRecorder) GetProductsBySKUs(_ context.Context, skus []string) (*supplier.ProductsResponse, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.chunks = append(c.chunks, skus)
	var resp supplier.ProductsResponse
	for _, sku := range skus {
		if rec, ok := c.records[sku]; ok {
			resp.Result = append(resp.Result, rec)
		}
	}
	resp.Total = len(resp.Result)
	return &resp, nil
}

func TestFetchIndexChunksAndMerges(t *testing.T) {
	client := &chunkRecorder{records: map[string]supplier.ProductRecord{}}
	skus := make([]string, 150)
	for i := range skus {
		sku := string(rune('A'+i%26)) + string(rune('0'+i/26))
		skus[i] = sku
		client.records[sku] = supplier.ProductRecord{SKU: sku, StockQty: i}
	}

	index, err := fetchIndex(context.Background(), client, skus)
	require.NoError(t, err)

	require.Len(t, client.chunks, 2)
	assert.Len(t, client.chunks[0], 100)
	assert.Len(t, client.chunks[1], 50)

	for _, sku := range skus {
		require.Contains(t, index, sku)
	}
}

func TestFetchIndexPropagatesError(t *testing.T) {
	client := &chunkRecorder{err: errors.New("boom")}

	_, err := fetchIndex(context.Background(), client, []string{"A"})
	assert.Error(t, err)
}

func TestFetchIndexSkipsUnknownSKUs(t *testing.T) {
	client := &chunkRecorder{records: map[string]supplier.ProductRecord{
		"KNOWN": {SKU: "KNOWN"},
	}}

	index, err := fetchIndex(context.Background(), client, []string{"KNOWN", "GONE"})
	require.NoError(t, err)
	assert.Contains(t, index, "KNOWN")
	assert.NotContains(t, index, "GONE")
}
