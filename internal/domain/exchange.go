package domain

// ExchangeState is the exchange's own governance record: current owner,
// the two-phase transfer candidate, and the protocol fee.
type ExchangeState struct {
	Owner        string
	PendingOwner string
	FeeBps       uint32
}
