package models

import (
	"bytes"
	"encoding/json"
)

// Ref is a reference to another entity. The backend sends either the bare id
// or the populated document; both decode into Ref.
type Ref struct {
	ID     string `json:"_id"`
	Name   string `json:"name,omitempty"`
	Number int    `json:"nummesa,omitempty"`
}

func (r *Ref) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*r = Ref{}
		return nil
	}
	if b[0] == '"' {
		var id string
		if err := json.Unmarshal(b, &id); err != nil {
			return err
		}
		*r = Ref{ID: id}
		return nil
	}
	type plain Ref
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = Ref(p)
	return nil
}

func (r Ref) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ID)
}
