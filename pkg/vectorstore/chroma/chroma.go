package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	cfg "github.com/lecturanote/lecture-processor/config"
	"github.com/lecturanote/lecture-processor/pkg/logger"
	"github.com/lecturanote/lecture-processor/pkg/vectorstore"
)

// ChromaStore talks to a Chroma server over its v2 REST API. Collections
// are addressed by name externally and by server-assigned id internally,
// and every call is scoped to the configured tenant and database.
type ChromaStore struct {
	endpoint   string
	basePath   string
	httpClient *http.Client
	logger     logger.Logger
}

func NewChromaStore(log logger.Logger) *ChromaStore {
	conf := cfg.GetChromaConfig()
	return &ChromaStore{
		endpoint: conf.Endpoint,
		basePath: fmt.Sprintf("/api/v2/tenants/%s/databases/%s", conf.Tenant, conf.Database),
		httpClient: &http.Client{
			Timeout: time.Duration(conf.TimeoutSec) * time.Second,
		},
		logger: log,
	}
}

type collectionInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type addRequest struct {
	IDs        []string                 `json:"ids"`
	Embeddings [][]float32              `json:"embeddings"`
	Documents  []string                 `json:"documents"`
	Metadatas  []map[string]interface{} `json:"metadatas"`
}

type queryRequest struct {
	QueryEmbeddings [][]float32            `json:"query_embeddings"`
	NResults        int                    `json:"n_results"`
	Where           map[string]interface{} `json:"where,omitempty"`
	Include         []string               `json:"include"`
}

type queryResponse struct {
	IDs       [][]string                 `json:"ids"`
	Documents [][]string                 `json:"documents"`
	Metadatas [][]map[string]interface{} `json:"metadatas"`
	Distances [][]float64                `json:"distances"`
}

// CreateOrReplace implements Store.CreateOrReplace.
func (s *ChromaStore) CreateOrReplace(ctx context.Context, name string) error {
	if err := s.Delete(ctx, name); err != nil {
		return err
	}

	body := map[string]interface{}{
		"name":          name,
		"get_or_create": true,
	}
	var info collectionInfo
	if err := s.do(ctx, http.MethodPost, s.basePath+"/collections", body, &info); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return nil
}

// Add implements Store.Add.
func (s *ChromaStore) Add(ctx context.Context, name string, ids []string, embeddings [][]float32, documents []string, metadatas []map[string]interface{}) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(embeddings) || len(ids) != len(documents) || len(ids) != len(metadatas) {
		return fmt.Errorf("mismatched lengths: %d ids, %d embeddings, %d documents, %d metadatas",
			len(ids), len(embeddings), len(documents), len(metadatas))
	}

	info, err := s.getCollection(ctx, name)
	if err != nil {
		return err
	}

	req := addRequest{
		IDs:        ids,
		Embeddings: embeddings,
		Documents:  documents,
		Metadatas:  metadatas,
	}
	path := fmt.Sprintf("%s/collections/%s/add", s.basePath, info.ID)
	if err := s.do(ctx, http.MethodPost, path, req, nil); err != nil {
		return fmt.Errorf("failed to add to collection %s: %w", name, err)
	}
	return nil
}

// Query implements Store.Query.
func (s *ChromaStore) Query(ctx context.Context, name string, embedding []float32, k int, where map[string]interface{}) ([]vectorstore.Match, error) {
	info, err := s.getCollection(ctx, name)
	if err != nil {
		return nil, err
	}

	req := queryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        k,
		Where:           where,
		Include:         []string{"documents", "metadatas", "distances"},
	}
	var resp queryResponse
	path := fmt.Sprintf("%s/collections/%s/query", s.basePath, info.ID)
	if err := s.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", name, err)
	}

	if len(resp.IDs) == 0 {
		return nil, nil
	}
	matches := make([]vectorstore.Match, 0, len(resp.IDs[0]))
	for i, id := range resp.IDs[0] {
		m := vectorstore.Match{ID: id}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			m.Document = resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			m.Metadata = resp.Metadatas[0][i]
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			m.Distance = resp.Distances[0][i]
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// Delete implements Store.Delete. A missing collection is treated as
// already deleted.
func (s *ChromaStore) Delete(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.endpoint+s.basePath+"/collections/"+name, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("unexpected status code %d deleting collection %s", resp.StatusCode, name)
	}
	return nil
}

func (s *ChromaStore) getCollection(ctx context.Context, name string) (*collectionInfo, error) {
	var info collectionInfo
	if err := s.do(ctx, http.MethodGet, s.basePath+"/collections/"+name, nil, &info); err != nil {
		return nil, fmt.Errorf("failed to get collection %s: %w", name, err)
	}
	return &info, nil
}

func (s *ChromaStore) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	return nil
}
