package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/rowsearch/internal/db"
	blevedb "github.com/kailas-cloud/rowsearch/internal/db/bleve"
	"github.com/kailas-cloud/rowsearch/internal/domain"
	"github.com/kailas-cloud/rowsearch/internal/domain/cql"
	"github.com/kailas-cloud/rowsearch/internal/domain/schema"
	"github.com/kailas-cloud/rowsearch/internal/repository/cells"
	"github.com/kailas-cloud/rowsearch/internal/repository/document"
	"github.com/kailas-cloud/rowsearch/internal/storage/memory"
	healthuc "github.com/kailas-cloud/rowsearch/internal/usecase/health"
	indexinguc "github.com/kailas-cloud/rowsearch/internal/usecase/indexing"
	searchuc "github.com/kailas-cloud/rowsearch/internal/usecase/search"
)

// newTestRouter wires a full in-memory stack behind the router.
func newTestRouter(t *testing.T, apiKeys ...string) (http.Handler, *Server) {
	t.Helper()
	table, err := cql.NewTable("users", map[string]string{"city": "text", "age": "int"})
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	s, err := schema.Build(db.AnalyzerStandard, map[string]schema.Declaration{
		"city": {Kind: schema.KindText},
		"age":  {Kind: schema.KindInteger},
	})
	if err != nil {
		t.Fatalf("schema: %v", err)
	}

	engine := blevedb.NewStore(blevedb.Config{})
	t.Cleanup(func() { _ = engine.Close() })
	mapper := document.NewMapper(s)
	docs := document.New(engine, mapper)
	if err := docs.EnsureIndex(context.Background(), "users_idx"); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}

	store := memory.New(table)
	rows := cells.New(store, mapper)
	srv := NewServer(
		rows,
		indexinguc.New(docs, rows, nil),
		searchuc.New(s, docs, searchuc.NewMaterializer(rows, nil), nil),
		healthuc.New(engine, store),
		nil,
	)
	return NewRouter(srv, apiKeys, zapNop()), srv
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func madrid(pk string, age int) MutationRequest {
	ts := time.Unix(100, 0).UTC()
	return MutationRequest{
		PartitionKey: pk,
		Timestamp:    &ts,
		Cells: []CellRequest{
			{},
			{Column: "city", Value: "Madrid"},
			{Column: "age", Value: age},
		},
	}
}

const madridQuery = `{"query":{"type":"boolean","must":[
	{"type":"match","field":"city","value":"madrid"},
	{"type":"range","field":"age","lower":18,"upper":65}]}}`

func TestServer_MutationThenSearch(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := do(t, h, http.MethodPost, "/v1/mutations", madrid("5031", 30))
	if rr.Code != http.StatusOK {
		t.Fatalf("mutation: got %d: %s", rr.Code, rr.Body)
	}
	out := decodeBody[MutationResponse](t, rr)
	if out.State != "done" || out.Upserted != 1 {
		t.Errorf("outcome = %+v", out)
	}
	if out.Outcome != "received -> classified -> upserted -> done" {
		t.Errorf("path = %q", out.Outcome)
	}

	rr = do(t, h, http.MethodPost, "/v1/search", madridQuery)
	if rr.Code != http.StatusOK {
		t.Fatalf("search: got %d: %s", rr.Code, rr.Body)
	}
	resp := decodeBody[SearchResponse](t, rr)
	if resp.Total != 1 || resp.Items[0].PartitionKey != "5031" || resp.Items[0].Score <= 0 {
		t.Fatalf("search response = %+v", resp)
	}
	if resp.Items[0].ClusteringKey != "" || resp.Items[0].Columns["city"] != "Madrid" {
		t.Errorf("item = %+v", resp.Items[0])
	}
	if resp.Partial {
		t.Error("result should be complete")
	}
}

func TestServer_DeletePartition(t *testing.T) {
	h, _ := newTestRouter(t)
	do(t, h, http.MethodPost, "/v1/mutations", madrid("5031", 30))

	rr := do(t, h, http.MethodDelete, "/v1/partitions/5031", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: got %d: %s", rr.Code, rr.Body)
	}
	resp := decodeBody[SearchResponse](t, do(t, h, http.MethodPost, "/v1/search", madridQuery))
	if resp.Total != 0 {
		t.Errorf("partition still searchable: %+v", resp)
	}

	if rr := do(t, h, http.MethodDelete, "/v1/partitions/zz", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad key: got %d", rr.Code)
	}
}

func TestServer_PartitionDeletionMutation(t *testing.T) {
	h, _ := newTestRouter(t)
	do(t, h, http.MethodPost, "/v1/mutations", madrid("5031", 30))

	ts := time.Unix(200, 0).UTC()
	rr := do(t, h, http.MethodPost, "/v1/mutations", MutationRequest{PartitionKey: "5031", Timestamp: &ts, DeletePartition: true})
	if rr.Code != http.StatusOK {
		t.Fatalf("mutation: got %d: %s", rr.Code, rr.Body)
	}
	if out := decodeBody[MutationResponse](t, rr); out.Outcome != "received -> classified -> partition_deleted -> done" {
		t.Errorf("outcome = %+v", out)
	}
	resp := decodeBody[SearchResponse](t, do(t, h, http.MethodPost, "/v1/search", madridQuery))
	if resp.Total != 0 {
		t.Errorf("partition still searchable: %+v", resp)
	}
}

func TestServer_Rebuild(t *testing.T) {
	h, _ := newTestRouter(t)
	do(t, h, http.MethodPost, "/v1/mutations", madrid("01", 30))
	do(t, h, http.MethodPost, "/v1/mutations", madrid("02", 40))

	rr := do(t, h, http.MethodPost, "/v1/rebuild", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("rebuild: got %d: %s", rr.Code, rr.Body)
	}
	if stats := decodeBody[RebuildResponse](t, rr); stats.Partitions != 2 || stats.Rows != 2 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestServer_BadRequests(t *testing.T) {
	h, _ := newTestRouter(t)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   ErrorCode
	}{
		{"malformed json", "/v1/search", `{"query":`, http.StatusBadRequest, ErrorCodeBadRequest},
		{"unknown condition", "/v1/search", `{"query":{"type":"nope"}}`, http.StatusBadRequest, ErrorCodeValidationFailed},
		{"unmapped field", "/v1/search", `{"query":{"type":"match","field":"zip","value":"1"}}`, http.StatusBadRequest, ErrorCodeValidationFailed},
		{"pattern on number", "/v1/search", `{"query":{"type":"wildcard","field":"age","value":"3*"}}`, http.StatusBadRequest, ErrorCodeValidationFailed},
		{"negative limit", "/v1/search", `{"limit":-1}`, http.StatusBadRequest, ErrorCodeValidationFailed},
		{"missing partition key", "/v1/mutations", `{"cells":[{"column":"city","value":"x"}]}`, http.StatusBadRequest, ErrorCodeValidationFailed},
		{"bad partition key", "/v1/mutations", `{"partition_key":"zz"}`, http.StatusBadRequest, ErrorCodeValidationFailed},
		{"wrong value type", "/v1/mutations", `{"partition_key":"01","cells":[{"column":"age","value":"old"}]}`, http.StatusBadRequest, ErrorCodeValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, tt.path, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("got %d, want %d: %s", rr.Code, tt.status, rr.Body)
			}
			if e := decodeBody[ErrorResponse](t, rr); e.Code != tt.code {
				t.Errorf("code = %q, want %q", e.Code, tt.code)
			}
		})
	}
}

func TestServer_Health(t *testing.T) {
	h, _ := newTestRouter(t, "secret")

	rr := do(t, h, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("health: got %d: %s", rr.Code, rr.Body)
	}
	resp := decodeBody[HealthResponse](t, rr)
	if resp.Status != "ok" || resp.Checks["index"] != "ok" || resp.Checks["storage"] != "ok" {
		t.Errorf("health = %+v", resp)
	}
}

func TestServer_AuthProtectsAPI(t *testing.T) {
	h, _ := newTestRouter(t, "secret")

	if rr := do(t, h, http.MethodPost, "/v1/search", `{}`); rr.Code != http.StatusUnauthorized {
		t.Errorf("no key: got %d", rr.Code)
	}
	rr := do(t, h, http.MethodPost, "/v1/search", `{}`, "Authorization", "Bearer secret")
	if rr.Code != http.StatusOK {
		t.Errorf("with key: got %d: %s", rr.Code, rr.Body)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("request id not propagated")
	}
}

func TestServer_UnknownRoute(t *testing.T) {
	h, _ := newTestRouter(t)
	if rr := do(t, h, http.MethodGet, "/v1/nothing", nil); rr.Code != http.StatusNotFound {
		t.Errorf("got %d", rr.Code)
	}
}

func TestHandleDomainError(t *testing.T) {
	_, srv := newTestRouter(t)

	tests := []struct {
		err    error
		status int
		code   ErrorCode
	}{
		{fmt.Errorf("wrap: %w", domain.ErrInvalidMutation), http.StatusBadRequest, ErrorCodeValidationFailed},
		{domain.NewUnmappedColumn("zip"), http.StatusBadRequest, ErrorCodeValidationFailed},
		{fmt.Errorf("partition 01: %w", domain.ErrStorageRead), http.StatusServiceUnavailable, ErrorCodeStorageUnavailable},
		{fmt.Errorf("upsert _id:01: %w", domain.ErrIndexEngine), http.StatusBadGateway, ErrorCodeIndexEngineError},
		{errors.New("boom"), http.StatusInternalServerError, ErrorCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rr := httptest.NewRecorder()
			srv.handleDomainError(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody), tt.err)
			if rr.Code != tt.status {
				t.Fatalf("got %d, want %d", rr.Code, tt.status)
			}
			e := decodeBody[ErrorResponse](t, rr)
			if e.Code != tt.code {
				t.Errorf("code = %q, want %q", e.Code, tt.code)
			}
			if tt.status >= 500 && e.Message == tt.err.Error() {
				t.Errorf("internal details leaked: %q", e.Message)
			}
		})
	}
}

func TestJSONRecoverer(t *testing.T) {
	h := JSONRecoverer(zapNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("got %d", rr.Code)
	}
	if e := decodeBody[ErrorResponse](t, rr); e.Code != ErrorCodeInternalError {
		t.Errorf("code = %q", e.Code)
	}
}

func zapNop() *zap.Logger { return zap.NewNop() }
