package model

import "time"

// EntityTypeProperty is the entity type under which listings are stored
const EntityTypeProperty = "property"

// PropertyStatus represents a listing's publication state
type PropertyStatus string

const (
	PropertyDraft      PropertyStatus = "draft"
	PropertyListed     PropertyStatus = "listed"
	PropertyUnderOffer PropertyStatus = "under_offer"
	PropertySold       PropertyStatus = "sold"
	PropertyWithdrawn  PropertyStatus = "withdrawn"
)

// Valid reports whether the status is a known listing status
func (s PropertyStatus) Valid() bool {
	switch s {
	case PropertyDraft, PropertyListed, PropertyUnderOffer, PropertySold, PropertyWithdrawn:
		return true
	}
	return false
}

// Property represents a real-estate listing owned by a tenant
type Property struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	Address   string         `json:"address"`
	City      string         `json:"city"`
	Price     int64          `json:"price"`
	Bedrooms  int            `json:"bedrooms"`
	AreaSqm   float64        `json:"area_sqm,omitempty"`
	Status    PropertyStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ToRecord converts the property to its storage representation
func (p *Property) ToRecord() *EntityRecord {
	return &EntityRecord{
		Type:     EntityTypeProperty,
		ID:       p.ID,
		TenantID: p.TenantID,
		Doc: map[string]interface{}{
			"address":  p.Address,
			"city":     p.City,
			"price":    p.Price,
			"bedrooms": p.Bedrooms,
			"area_sqm": p.AreaSqm,
			"status":   string(p.Status),
		},
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// PropertyFromRecord converts a storage record back into a property.
// Numeric doc values may arrive as float64 after a JSON round trip.
func PropertyFromRecord(rec *EntityRecord) *Property {
	return &Property{
		ID:        rec.ID,
		TenantID:  rec.TenantID,
		Address:   docString(rec.Doc, "address"),
		City:      docString(rec.Doc, "city"),
		Price:     docInt64(rec.Doc, "price"),
		Bedrooms:  int(docInt64(rec.Doc, "bedrooms")),
		AreaSqm:   docFloat64(rec.Doc, "area_sqm"),
		Status:    PropertyStatus(docString(rec.Doc, "status")),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func docString(doc map[string]interface{}, key string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return ""
}

func docInt64(doc map[string]interface{}, key string) int64 {
	switch v := doc[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func docFloat64(doc map[string]interface{}, key string) float64 {
	switch v := doc[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}
