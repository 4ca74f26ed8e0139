package interfaces

import (
	"context"
	"time"
)

type BreachLookupKind string

const (
	BreachLookupNotFound    BreachLookupKind = "not_found"
	BreachLookupRateLimited BreachLookupKind = "rate_limited"
	BreachLookupFound       BreachLookupKind = "found"
)

// BreachRecord mirrors one entry from the external breach database.
type BreachRecord struct {
	Name        string   `json:"Name"`
	Title       string   `json:"Title"`
	Domain      string   `json:"Domain"`
	BreachDate  string   `json:"BreachDate"`
	DataClasses []string `json:"DataClasses"`

	IsVerified   bool `json:"IsVerified"`
	IsFabricated bool `json:"IsFabricated"`
	IsRetired    bool `json:"IsRetired"`
	IsSpamList   bool `json:"IsSpamList"`
	IsSensitive  bool `json:"IsSensitive"`
}

// BreachLookupResult is an explicit result type: the caller must handle
// the not-found and rate-limited outcomes distinctly from failures.
type BreachLookupResult struct {
	Kind       BreachLookupKind
	RetryAfter time.Duration
	Breaches   []BreachRecord
}

type BreachLookupClient interface {
	LookupBreaches(ctx context.Context, email string) (*BreachLookupResult, error)

	// LookupPastes probes the client's secondary endpoint for a decoy
	// token appearing on external paste/breach surfaces.
	LookupPastes(ctx context.Context, token string) (bool, error)
}
