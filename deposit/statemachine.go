package deposit

// The deposit lifecycle is driven by an explicit transition table. Every
// status change anywhere in the server goes through Allowed, so an illegal
// edge can never be written to the data store.

var transitions = map[Status][]Status{
	StatusUnknown:   {StatusPartial, StatusDeposited},
	StatusPartial:   {StatusPartial, StatusDeposited, StatusExpired},
	StatusDeposited: {StatusVerified, StatusRejected},
	StatusVerified:  {StatusLoading},
	StatusLoading:   {StatusDone, StatusFailed},
	// failed -> verified is the operator requeue through the private API.
	StatusFailed: {StatusVerified},
	// done -> done covers the metadata-only amendment with a matching
	// archived-object identifier.
	StatusDone: {StatusDone},
}

// Allowed reports whether the edge from -> to is a permitted transition.
func Allowed(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a deposit in this status will never change again
// on its own. (Done deposits still accept metadata amendments, but their
// status stays done.)
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusDone, StatusFailed, StatusExpired:
		return true
	}
	return false
}

// Mutable reports whether the protocol may still add, replace, or delete
// requests on a deposit in this status. The done + matching SWHID amendment
// is the one exception and is guarded separately by the Edit handler.
func (s Status) Mutable() bool {
	return s == StatusPartial
}
