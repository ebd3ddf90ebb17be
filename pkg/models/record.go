package models

import "time"

// PartyType classifies the kind of party a watchlist record describes.
type PartyType string

const (
	PartyTypeIndividual PartyType = "Individual"
	PartyTypeEntity     PartyType = "Entity"
	PartyTypeVessel     PartyType = "Vessel"
	PartyTypeAircraft   PartyType = "Aircraft"
)

// Identifier is a structured external ID (passport, tax ID, registration
// number) attached to a watchlist record. Used for exact-match lookup
// independent of fuzzy scoring.
type Identifier struct {
	Type           string     `json:"type"`
	Number         string     `json:"number"`
	Country        string     `json:"country,omitempty"`
	IssueDate      *time.Time `json:"issue_date,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
}

// WatchlistRecord is one entry on a sanctions or PEP list. Records are owned
// by the record store and mutated only by batch upsert during ingestion.
type WatchlistRecord struct {
	ID          string       `json:"id"`
	Dataset     string       `json:"dataset"`
	PartyType   PartyType    `json:"party_type"`
	PrimaryName string       `json:"primary_name"`
	Aliases     []string     `json:"aliases,omitempty"`
	BirthDate   string       `json:"birth_date,omitempty"`
	BirthPlace  string       `json:"birth_place,omitempty"`
	Addresses   []string     `json:"addresses,omitempty"`
	Identifiers []Identifier `json:"identifiers,omitempty"`
	Remarks     string       `json:"remarks,omitempty"`
	SourceList  string       `json:"source_list,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// IdentifierHit is an exact identifier-index match pointing at a record.
type IdentifierHit struct {
	Dataset  string
	RecordID string
}
