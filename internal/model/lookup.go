package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// LookupTag pagination cursor; the zero value marshals as the sentinel 0
type LookupTag string

func (t LookupTag) MarshalJSON() ([]byte, error) {
	if t == "" {
		return []byte("0"), nil
	}
	return json.Marshal(string(t))
}

func (t *LookupTag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "0" {
			s = ""
		}
		*t = LookupTag(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("lookup tag must be a string or 0: %w", err)
	}
	if n.String() != "0" {
		return fmt.Errorf("numeric lookup tag must be 0, got %s", n)
	}
	*t = ""
	return nil
}

// LookupResult one page of a LookUp or LookUpNext call
type LookupResult struct {
	TotalCount int       `json:"totalCount"`
	LookupTag  LookupTag `json:"lookupTag"`
	IDs        []string  `json:"ids"`
}
