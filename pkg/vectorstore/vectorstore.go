package vectorstore

import (
	"context"
)

// Match is one nearest-neighbor query result.
type Match struct {
	ID       string
	Document string
	Metadata map[string]interface{}
	Distance float64
}

// Store abstracts the external vector collection store. A collection holds
// one lecture's embedded corpus; its indexing and search internals are the
// collaborator's concern.
type Store interface {
	// CreateOrReplace drops any existing collection with the name and
	// creates a fresh empty one.
	CreateOrReplace(ctx context.Context, name string) error
	// Add appends documents with precomputed embeddings.
	Add(ctx context.Context, name string, ids []string, embeddings [][]float32, documents []string, metadatas []map[string]interface{}) error
	// Query returns the k nearest documents, optionally filtered on
	// metadata equality.
	Query(ctx context.Context, name string, embedding []float32, k int, where map[string]interface{}) ([]Match, error)
	// Delete removes the collection. Deleting a missing collection is not
	// an error.
	Delete(ctx context.Context, name string) error
}
