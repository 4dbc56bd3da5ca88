package rbac

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Permissions is the JSON column type storing a role's grants.
type Permissions []Permission

func (p Permissions) Value() (driver.Value, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p)
}

func (p *Permissions) Scan(value interface{}) error {
	if value == nil {
		*p = Permissions{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("rbac: cannot scan %T into Permissions", value)
	}
}
