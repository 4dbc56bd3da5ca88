// Package jsonb holds small helpers for storing JSON columns with GORM.
// Postgres stores them as jsonb, the sqlite test databases as text.
package jsonb

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Map is a JSON object column.
type Map map[string]any

func (m Map) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *Map) Scan(value interface{}) error {
	if value == nil {
		*m = Map{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("jsonb: cannot scan %T into Map", value)
	}
}

// StringList is a JSON array-of-strings column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = StringList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("jsonb: cannot scan %T into StringList", value)
	}
}
