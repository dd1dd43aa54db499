// internal/models/profile.go
package models

import "time"

// Profile is the read-only citizen profile supplied by the profile collaborator.
type Profile struct {
	UserID       string     `json:"userId"`
	Attributes   Attributes `json:"attributes"`
	Completeness float64    `json:"completeness"` // 0-100
	Language     string     `json:"language,omitempty"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Lookup returns the attribute and whether the citizen supplied it.
func (p *Profile) Lookup(field string) (Value, bool) {
	if p == nil || p.Attributes == nil {
		return Value{}, false
	}
	v, ok := p.Attributes[field]
	if !ok || !v.IsValid() {
		return Value{}, false
	}
	return v, true
}
