package server

import "encoding/json"

// jsonCodec lets the Connect handlers carry the plain wire structs in
// types.go. Registering it under the standard "json" name replaces the
// default protobuf-backed JSON codec, so handlers accept any
// Content-Type: application/json client without generated stubs.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(msg interface{}) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}
