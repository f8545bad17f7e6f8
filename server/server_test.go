package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/omniql-engine/querycraft/config"
	"github.com/omniql-engine/querycraft/engine/translator"
)

const usersQuery = "SELECT * FROM users WHERE age > 25 AND status = 'active' ORDER BY created_at DESC LIMIT 10"

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, false, c.err
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.data[key] = value
	return nil
}

func newTestServer(opts ...Option) *Server {
	return New(config.ServerConfig{}, translator.New(translator.DefaultConfig()), opts...)
}

func post(h http.Handler, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func data(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env.Data
}

func TestConvert(t *testing.T) {
	s := newTestServer()
	body, _ := json.Marshal(map[string]string{"sql_query": usersQuery, "query_type": "select"})
	rec := post(s.Handler(), "/sql-to-nosql-converter", string(body))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	res := data(t, rec)
	assert.Equal(t, `db.users.find({ age: { $gt: 25 }, status: "active" }).sort({ created_at: -1 }).limit(10)`, res["primary_mongodb"])
	assert.Equal(t, []any{}, res["approaches"])
	assert.NotEmpty(t, res["explanation"])

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.Conversions.WithLabelValues(directionToMongo, "ok")))
}

func TestConvertErrors(t *testing.T) {
	s := newTestServer()
	h := s.Handler()

	rec := post(h, "/sql-to-nosql-converter", `{"query_type": "select"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error": "SQL query is required"}`, rec.Body.String())

	rec = post(h, "/sql-to-nosql-converter", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(h, "/sql-to-nosql-converter", `{"sql_query": `)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"bad_request"`)

	rec = post(h, "/sql-to-nosql-converter", `{"sql_query": "SELECT ROW_NUMBER() OVER (ORDER BY id) FROM t"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unsupported_feature", body.Kind)
	assert.Equal(t, "window function", body.Feature)
	require.NotNil(t, body.Position)

	rec = post(h, "/sql-to-nosql-converter", `{"sql_query": "SELECT name FROM orders o JOIN customers c ON o.customer_id = c.id"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body = errorBody{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ambiguous_column", body.Kind)
	assert.Equal(t, "name", body.Column)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.Conversions.WithLabelValues(directionToMongo, "unsupported_feature")))
	assert.Equal(t, 3.0, testutil.ToFloat64(s.metrics.Conversions.WithLabelValues(directionToMongo, "bad_request")))
}

func TestBodyLimit(t *testing.T) {
	s := New(config.ServerConfig{MaxBodyBytes: 16}, translator.New(translator.DefaultConfig()))
	rec := post(s.Handler(), "/sql-to-nosql-converter", `{"sql_query": "`+usersQuery+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestPreflight(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodOptions, "/sql-to-nosql-converter", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "authorization, x-client-info, apikey, content-type", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestRequestIDPassthrough(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}

func TestCache(t *testing.T) {
	cache := newMemoryCache()
	s := newTestServer(WithCache(cache))
	h := s.Handler()
	body, _ := json.Marshal(map[string]string{"sql_query": usersQuery})

	first := post(h, "/sql-to-nosql-converter", string(body))
	require.Equal(t, http.StatusOK, first.Code)
	second := post(h, "/sql-to-nosql-converter", string(body))
	require.Equal(t, http.StatusOK, second.Code)

	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Len(t, cache.data, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.Conversions.WithLabelValues(directionToMongo, "cached")))
}

func TestCacheFailureIsIgnored(t *testing.T) {
	cache := newMemoryCache()
	cache.err = errors.New("connection refused")
	s := newTestServer(WithCache(cache))
	body, _ := json.Marshal(map[string]string{"sql_query": usersQuery})

	rec := post(s.Handler(), "/sql-to-nosql-converter", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues("error")))
}

func TestCacheKey(t *testing.T) {
	assert.Len(t, CacheKey("a", "b"), 64)
	assert.Equal(t, CacheKey("a", "b"), CacheKey("a", "b"))
	assert.NotEqual(t, CacheKey("ab", ""), CacheKey("a", "b"))
}

func TestProtobufResponse(t *testing.T) {
	s := newTestServer()
	body, _ := json.Marshal(map[string]string{"sql_query": usersQuery})
	rec := post(s.Handler(), "/sql-to-nosql-converter", string(body), "Accept", ContentTypeProto)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ContentTypeProto, rec.Header().Get("Content-Type"))

	var st structpb.Struct
	require.NoError(t, proto.Unmarshal(rec.Body.Bytes(), &st))
	res := st.GetFields()["data"].GetStructValue()
	require.NotNil(t, res)
	assert.True(t, strings.HasPrefix(res.GetFields()["primary_mongodb"].GetStringValue(), "db.users.find("))
}

func TestReverse(t *testing.T) {
	s := newTestServer()
	h := s.Handler()
	const find = `{"find": "users", "filter": {"age": {"$gt": 25}, "status": "active"}, "projection": {"name": 1, "email": 1, "age": 1}, "sort": {"created_at": -1}, "limit": 10}`
	want := "SELECT name, email, age FROM users WHERE age > 25 AND status = 'active' ORDER BY created_at DESC LIMIT 10"

	asString, _ := json.Marshal(map[string]string{"mongodb_query": find, "query_type": "find"})
	rec := post(h, "/nosql-to-sql-converter", string(asString))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := data(t, rec)
	assert.Equal(t, want, res["sql"])
	assert.NotEmpty(t, res["explanation"])
	assert.NotEmpty(t, res["notes"])

	rec = post(h, "/nosql-to-sql-converter", `{"mongodb_query": `+find+`}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, want, data(t, rec)["sql"])

	rec = post(h, "/nosql-to-sql-converter", `{"mongodb_query": "[{\"$match\": {\"active\": true}}]", "collection": "users"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "SELECT * FROM users WHERE active = TRUE", data(t, rec)["sql"])

	rec = post(h, "/nosql-to-sql-converter", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error": "MongoDB query is required"}`, rec.Body.String())

	rec = post(h, "/nosql-to-sql-converter", `{"mongodb_query": "{\"mapReduce\": \"users\"}"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"not_supported"`)

	rec = post(h, "/nosql-to-sql-converter", `{"mongodb_query": "{\"find\": "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"invalid_query"`)
}

func TestValidate(t *testing.T) {
	h := newTestServer().Handler()

	rec := post(h, "/validate-sql", `{"sql_query": "SELECT name FROM users WHERE age > 25", "dialect": "postgresql"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, data(t, rec)["valid"])

	rec = post(h, "/validate-sql", `{"sql_query": "SELECT FROM WHERE"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	res := data(t, rec)
	assert.Equal(t, false, res["valid"])
	assert.NotEmpty(t, res["error"])

	rec = post(h, "/validate-sql", `{"sql_query": "SELECT 1", "dialect": "oracle"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported_dialect")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer()
	h := s.Handler()
	post(h, "/sql-to-nosql-converter", `{}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `querycraft_conversions_total{direction="sql_to_mongodb",outcome="bad_request"} 1`)
	assert.Contains(t, rec.Body.String(), "querycraft_request_duration_seconds")
}
