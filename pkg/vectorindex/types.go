// Package vectorindex wraps the external nearest-neighbor service that holds
// one embedding per watchlist record.
package vectorindex

import "strings"

// Vector is one entry in the external index. The metadata bag carries the
// filterable fields (dataset, record_id, party_type, plus list-specific
// fields such as birth_date).
type Vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Match is one nearest-neighbor hit.
type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// VectorID composes the index key for a record. The id part may itself
// contain colons, so parsing must split on the first colon only.
func VectorID(dataset, recordID string) string {
	return dataset + ":" + recordID
}

// ParseVectorID splits a vector id into (dataset, recordID). Everything
// after the first colon belongs to the record id.
func ParseVectorID(id string) (dataset, recordID string, ok bool) {
	dataset, recordID, ok = strings.Cut(id, ":")
	if !ok || dataset == "" || recordID == "" {
		return "", "", false
	}
	return dataset, recordID, true
}
