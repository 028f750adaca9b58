package codec

import "encoding/json"

// JSON is the standard-library JSON codec.
//
// JSON works for typical structs, maps and slices. Payload types that JSON
// cannot represent (funcs, channels, complex numbers) need a custom Codec.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the default codec used by the library.
//
// Persisted snapshots are self-describing (they record the codec name), so
// changing the default never breaks existing files.
var Default Codec = JSON{}
