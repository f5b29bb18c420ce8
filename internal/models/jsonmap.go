package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// PlatformData is the open bag of platform facts stored alongside a
// reference. Values are scalars or flat lists of scalars.
type PlatformData map[string]any

func (d PlatformData) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

func (d *PlatformData) Scan(src any) error {
	return scanJSON(src, d)
}

// Merge overwrites keys in d with the values from other. Later writers win.
func (d PlatformData) Merge(other PlatformData) PlatformData {
	out := make(PlatformData, len(d)+len(other))
	for k, v := range d {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *StringMap) Scan(src any) error {
	return scanJSON(src, m)
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return errors.New("unsupported type for json column")
	}
}
