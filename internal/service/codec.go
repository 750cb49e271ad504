package service

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// jsonCodec replaces Connect's protojson codec so handlers can use plain Go
// structs as messages. It is registered under the same "json" name, so clients
// send Content-Type: application/json as usual.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// WithJSONCodec is the handler and client option every service in this package uses.
func WithJSONCodec() connect.Option {
	return connect.WithCodec(jsonCodec{})
}
