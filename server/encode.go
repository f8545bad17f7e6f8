package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ContentTypeProto selects a google.protobuf.Struct response body
const ContentTypeProto = "application/x-protobuf"

type envelope struct {
	Data any `json:"data"`
}

// errorBody is the JSON shape of every failed request
type errorBody struct {
	Error    string `json:"error"`
	Kind     string `json:"kind,omitempty"`
	Position *int   `json:"position,omitempty"`
	Feature  string `json:"feature,omitempty"`
	Column   string `json:"column,omitempty"`
	Details  string `json:"details,omitempty"`
}

// MarshalJSON encodes v without HTML escaping, so `=>` and `<` in generated
// code stay readable
func MarshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// MarshalProto converts a JSON object value into a serialized
// google.protobuf.Struct
func MarshalProto(v any) ([]byte, error) {
	raw, err := MarshalJSON(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("protobuf encoding needs a JSON object: %w", err)
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

func wantsProto(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), ContentTypeProto)
}
