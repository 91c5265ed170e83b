package frame

import "encoding/json"

// MarshalJSON flattens Data alongside "type" into a single JSON object, so
// the wire form is `{"type": "...", "field": ...}` rather than a nested
// envelope.
func (f Frame) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(f.Data)+1)
	for k, v := range f.Data {
		flat[k] = v
	}
	flat["type"] = f.Type
	return json.Marshal(flat)
}

// UnmarshalJSON accepts a flat `{"type": "...", ...}` object and splits it
// back into Type and Data.
func (f *Frame) UnmarshalJSON(b []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(b, &flat); err != nil {
		return err
	}
	typ, _ := flat["type"].(string)
	delete(flat, "type")
	f.Type = typ
	f.Data = flat
	return nil
}
