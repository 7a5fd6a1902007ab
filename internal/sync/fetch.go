package sync

import (
	"context"
	"fmt"

	"supplier-sync/internal/supplier"
)

// Supplier SKU batch-lookup ceiling; larger pages are split.
const fetchChunkSize = 100

// SupplierClient is the slice of the API client the coordinator needs.
type SupplierClient interface {
	GetProductsBySKUs(ctx context.Context, skus []string) (*supplier.ProductsResponse, error)
}

// chunkSKUs splits a SKU list into groups no larger than size.
func chunkSKUs(skus []string, size int) [][]string {
	var chunks [][]string
	for len(skus) > size {
		chunks = append(chunks, skus[:size])
		skus = skus[size:]
	}
	if len(skus) > 0 {
		chunks = append(chunks, skus)
	}
	return chunks
}

// fetchIndex resolves a page of SKUs into a SKU-keyed record index. Chunks
// are fetched sequentially: deliberate throttling against the rate limiter,
// trading latency for ceiling compliance.
func fetchIndex(ctx context.Context, client SupplierClient, skus []string) (map[string]*supplier.ProductRecord, error) {
	index := make(map[string]*supplier.ProductRecord, len(skus))

	for _, chunk := range chunkSKUs(skus, fetchChunkSize) {
		resp, err := client.GetProductsBySKUs(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("sku batch fetch failed: %w", err)
		}
		for i := range resp.Result {
			rec := &resp.Result[i]
			index[rec.SKU] = rec
		}
	}
	return index, nil
}
