package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-kit/log/level"

	"github.com/omniql-engine/querycraft/engine/reverse"
	"github.com/omniql-engine/querycraft/engine/translator"
	"github.com/omniql-engine/querycraft/engine/validator"
)

const (
	directionToMongo = "sql_to_mongodb"
	directionToSQL   = "mongodb_to_sql"
	directionCheck   = "validate"
)

type convertRequest struct {
	SQLQuery  string `json:"sql_query"`
	QueryType string `json:"query_type"`
}

// mongodb_query is usually a string holding the command, but a JSON
// document is accepted as well
type reverseRequest struct {
	MongoDBQuery json.RawMessage `json:"mongodb_query"`
	QueryType    string          `json:"query_type"`
	Collection   string          `json:"collection"`
}

func (r reverseRequest) query() string {
	var s string
	if err := json.Unmarshal(r.MongoDBQuery, &s); err == nil {
		return s
	}
	return string(r.MongoDBQuery)
}

type validateRequest struct {
	SQLQuery string `json:"sql_query"`
	Dialect  string `json:"dialect"`
}

func (s *Server) convert(w http.ResponseWriter, r *http.Request) {
	defer s.observe(directionToMongo, time.Now())

	var req convertRequest
	if !s.decode(w, r, directionToMongo, &req) {
		return
	}
	if strings.TrimSpace(req.SQLQuery) == "" {
		s.fail(w, r, directionToMongo, http.StatusBadRequest, errorBody{Error: "SQL query is required"})
		return
	}

	key := CacheKey(directionToMongo, req.SQLQuery, req.QueryType, s.tr.Config().Fingerprint())
	if data, ok := s.lookup(r, key); ok {
		s.succeed(w, r, directionToMongo, "cached", json.RawMessage(data))
		return
	}

	res, err := s.tr.Translate(translator.Request{SQL: req.SQLQuery, QueryType: req.QueryType})
	if err != nil {
		s.conversionError(w, r, directionToMongo, err)
		return
	}
	s.store(r, key, res)
	s.succeed(w, r, directionToMongo, "ok", res)
}

func (s *Server) convertBack(w http.ResponseWriter, r *http.Request) {
	defer s.observe(directionToSQL, time.Now())

	var req reverseRequest
	if !s.decode(w, r, directionToSQL, &req) {
		return
	}
	query := req.query()
	if strings.TrimSpace(query) == "" {
		s.fail(w, r, directionToSQL, http.StatusBadRequest, errorBody{Error: "MongoDB query is required"})
		return
	}

	key := CacheKey(directionToSQL, query, req.Collection)
	if data, ok := s.lookup(r, key); ok {
		s.succeed(w, r, directionToSQL, "cached", json.RawMessage(data))
		return
	}

	res, err := reverse.ToSQL(query, reverse.Options{Collection: req.Collection})
	if err != nil {
		s.conversionError(w, r, directionToSQL, err)
		return
	}
	s.store(r, key, res)
	s.succeed(w, r, directionToSQL, "ok", res)
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	defer s.observe(directionCheck, time.Now())

	var req validateRequest
	if !s.decode(w, r, directionCheck, &req) {
		return
	}
	if strings.TrimSpace(req.SQLQuery) == "" {
		s.fail(w, r, directionCheck, http.StatusBadRequest, errorBody{Error: "SQL query is required"})
		return
	}
	dialect, err := validator.ParseDialect(req.Dialect)
	if err != nil {
		s.fail(w, r, directionCheck, http.StatusBadRequest, errorBody{Error: err.Error(), Kind: "unsupported_dialect"})
		return
	}
	if dialect == "" {
		dialect = validator.MySQL
	}

	res, err := validator.ValidateWithDetails(req.SQLQuery, dialect)
	if err != nil {
		s.fail(w, r, directionCheck, http.StatusBadRequest, errorBody{Error: err.Error(), Kind: "unsupported_dialect"})
		return
	}
	s.succeed(w, r, directionCheck, "ok", res)
}

// decode reads a JSON body. An empty body decodes to the zero request so
// the required-field checks produce the error.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, direction string, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		s.fail(w, r, direction, http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large", Kind: "body_too_large"})
		return false
	}
	s.fail(w, r, direction, http.StatusBadRequest, errorBody{Error: "invalid request body", Kind: "bad_request", Details: err.Error()})
	return false
}

func (s *Server) conversionError(w http.ResponseWriter, r *http.Request, direction string, err error) {
	status, body := describe(err)
	if status >= http.StatusInternalServerError {
		level.Error(s.requestLogger(r)).Log("msg", "conversion failed", "direction", direction, "err", err)
	} else {
		level.Debug(s.requestLogger(r)).Log("msg", "conversion rejected", "direction", direction, "kind", body.Kind, "err", err)
	}
	s.fail(w, r, direction, status, body)
}

func (s *Server) succeed(w http.ResponseWriter, r *http.Request, direction, outcome string, data any) {
	s.metrics.Conversions.WithLabelValues(direction, outcome).Inc()
	s.respond(w, r, http.StatusOK, envelope{Data: data})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, direction string, status int, body errorBody) {
	outcome := body.Kind
	if outcome == "" {
		outcome = "bad_request"
	}
	s.metrics.Conversions.WithLabelValues(direction, outcome).Inc()
	s.writeJSON(w, r, status, body)
}

// respond writes a success body, as protobuf when the client asks for it
func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, body any) {
	if wantsProto(r) {
		out, err := MarshalProto(body)
		if err == nil {
			w.Header().Set("Content-Type", ContentTypeProto)
			w.WriteHeader(status)
			w.Write(out)
			return
		}
		level.Warn(s.requestLogger(r)).Log("msg", "protobuf encoding failed, answering with JSON", "err", err)
	}
	s.writeJSON(w, r, status, body)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	out, err := MarshalJSON(body)
	if err != nil {
		level.Error(s.requestLogger(r)).Log("msg", "failed to encode response", "err", err)
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(out)
}

// lookup reads the cache; failures count as a miss
func (s *Server) lookup(r *http.Request, key string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, ok, err := s.cache.Get(r.Context(), key)
	switch {
	case err != nil:
		s.metrics.CacheLookups.WithLabelValues("error").Inc()
		level.Warn(s.requestLogger(r)).Log("msg", "cache read failed", "err", err)
		return nil, false
	case !ok:
		s.metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	s.metrics.CacheLookups.WithLabelValues("hit").Inc()
	return data, true
}

func (s *Server) store(r *http.Request, key string, v any) {
	if s.cache == nil {
		return
	}
	data, err := MarshalJSON(v)
	if err == nil {
		err = s.cache.Set(r.Context(), key, data)
	}
	if err != nil {
		level.Warn(s.requestLogger(r)).Log("msg", "cache write failed", "err", err)
	}
}

func (s *Server) observe(direction string, start time.Time) {
	s.metrics.Duration.WithLabelValues(direction).Observe(time.Since(start).Seconds())
}
