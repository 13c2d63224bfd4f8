package directory

import (
	"time"

	"github.com/edgeix/peerbot/pkg/bird"
)

// Endpoint identifies one route server status endpoint.
type Endpoint struct {
	Location    string
	RouteServer string
	URL         string
}

// EndpointResult is the outcome of fetching one endpoint during a
// refresh: either a populated session table or an error, never both.
type EndpointResult struct {
	Endpoint Endpoint
	Table    bird.SessionTable
	Err      error
}

// Populated reports whether the endpoint contributed a session table
// this round.
func (r EndpointResult) Populated() bool {
	return r.Err == nil
}

// Snapshot is the full set of endpoint results from one refresh, in
// configuration order. It is immutable once built and replaced wholesale
// on the next refresh.
type Snapshot struct {
	Results   []EndpointResult
	FetchedAt time.Time
}

// ResultKind classifies a lookup outcome.
type ResultKind int

const (
	ResultInvalidInput ResultKind = iota
	ResultNotFound
	ResultFound
)

func (k ResultKind) String() string {
	switch k {
	case ResultInvalidInput:
		return "invalid_input"
	case ResultNotFound:
		return "not_found"
	case ResultFound:
		return "found"
	default:
		return "unknown"
	}
}

// PeeringRow is one (location, route server) match for a looked-up ASN.
type PeeringRow struct {
	Location    string `json:"location"`
	RouteServer string `json:"route_server"`
	State       string `json:"state"`
}

// Result is the outcome of an ASN lookup. For ResultFound, Rows holds one
// entry per (location, route server) in configuration order and Name is
// the session description of the last row encountered.
type Result struct {
	Kind ResultKind   `json:"kind"`
	ASN  int64        `json:"asn,omitempty"`
	Rows []PeeringRow `json:"rows,omitempty"`
	Name string       `json:"name,omitempty"`
}

// ASNEntry is one entry of the ASN index: the most recently seen
// description and every "LOC - rsN" label the ASN appeared under.
type ASNEntry struct {
	Description string   `json:"description"`
	Locations   []string `json:"locations"`
}

// IPEntry is one entry of the neighbor IP index.
type IPEntry struct {
	Description string `json:"description"`
	Location    string `json:"location"`
}
