package chroma

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lecturanote/lecture-processor/pkg/logger"
)

type recordedRequest struct {
	Method string
	Path   string
}

func testStore(t *testing.T, handler http.Handler) (*ChromaStore, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, recordedRequest{Method: r.Method, Path: r.URL.Path})
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	store := &ChromaStore{
		endpoint:   srv.URL,
		basePath:   "/api/v2/tenants/default_tenant/databases/default_database",
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     logger.NewTestLogger(),
	}
	return store, &requests
}

func TestCreateOrReplaceUsesTenantScopedPaths(t *testing.T) {
	store, requests := testStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(collectionInfo{ID: "c-1", Name: "lecture_7"})
	}))

	require.NoError(t, store.CreateOrReplace(context.Background(), "lecture_7"))

	require.Len(t, *requests, 2)
	assert.Equal(t, http.MethodDelete, (*requests)[0].Method)
	assert.Equal(t, "/api/v2/tenants/default_tenant/databases/default_database/collections/lecture_7", (*requests)[0].Path)
	assert.Equal(t, http.MethodPost, (*requests)[1].Method)
	assert.Equal(t, "/api/v2/tenants/default_tenant/databases/default_database/collections", (*requests)[1].Path)
}

func TestAddResolvesCollectionIDUnderTenantScope(t *testing.T) {
	store, requests := testStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(collectionInfo{ID: "c-9", Name: "lecture_7"})
	}))

	err := store.Add(context.Background(), "lecture_7",
		[]string{"pdf_7_1"},
		[][]float32{{0.1, 0.2}},
		[]string{"page one"},
		[]map[string]interface{}{{"source": "pdf", "page": 1}},
	)
	require.NoError(t, err)

	require.Len(t, *requests, 2)
	assert.Equal(t, "/api/v2/tenants/default_tenant/databases/default_database/collections/lecture_7", (*requests)[0].Path)
	assert.Equal(t, "/api/v2/tenants/default_tenant/databases/default_database/collections/c-9/add", (*requests)[1].Path)
}

func TestDeleteTreatsMissingCollectionAsDeleted(t *testing.T) {
	store, _ := testStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	assert.NoError(t, store.Delete(context.Background(), "lecture_404"))
}
