package model

import "time"

// EntityRecord is the storage representation of a tenant-owned entity.
// TenantID is the ownership tag; stores and the scope enforcer treat it
// as authoritative and never let callers change it after creation.
type EntityRecord struct {
	Type      string                 `json:"type"`
	ID        string                 `json:"id"`
	TenantID  string                 `json:"tenant_id"`
	Doc       map[string]interface{} `json:"doc"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Clone returns a deep copy of the record
func (r *EntityRecord) Clone() *EntityRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Doc = cloneDoc(r.Doc)
	return &c
}

func cloneDoc(doc map[string]interface{}) map[string]interface{} {
	if doc == nil {
		return nil
	}
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch tv := v.(type) {
	case map[string]interface{}:
		return cloneDoc(tv)
	case []interface{}:
		out := make([]interface{}, len(tv))
		for i, e := range tv {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
