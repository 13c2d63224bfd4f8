package bird

// StatusResponse is the JSON document served by a route server status
// endpoint: one entry per BGP protocol (peering session) configured on
// the BIRD daemon.
type StatusResponse struct {
	Protocols SessionTable `json:"protocols"`
}

// SessionTable maps BIRD's internal protocol identifier to its session.
type SessionTable map[string]Session

// Session is a single BGP session as reported by the status endpoint.
// Every field can be absent from the payload, hence the pointers.
type Session struct {
	NeighborAS      *int64  `json:"neighbor_as"`
	Description     *string `json:"description"`
	State           *string `json:"state"`
	NeighborAddress *string `json:"neighbor_address"`
}
