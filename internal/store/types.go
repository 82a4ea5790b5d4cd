package store

// Address identifies a caller. The store compares addresses byte for byte;
// callers are expected to normalise them before they reach it.
type Address string

// ProductID is an index into the product arena. Ids start at 0 and are never
// reused.
type ProductID uint64

type Product struct {
	ID       ProductID `json:"id"`
	Name     string    `json:"name"`
	Price    uint64    `json:"price"`
	Quantity uint64    `json:"quantity"`
}

// Bank moves native value out of the store. Credit either completes the
// transfer or returns an error and leaves balances as they were.
type Bank interface {
	Credit(to Address, amount uint64) error
}

// Env is the ambient context of one call: who is calling, what value came
// with the call, and the block height the call executes at.
type Env struct {
	Caller Address
	Value  uint64
	Block  uint64
	Bank   Bank
}

type PurchaseState uint8

const (
	NeverBought PurchaseState = iota
	Active
	Refunded
)

func (s PurchaseState) String() string {
	switch s {
	case NeverBought:
		return "never-bought"
	case Active:
		return "active"
	case Refunded:
		return "refunded"
	default:
		return "unknown"
	}
}

type Purchase struct {
	Buyer            Address       `json:"buyer"`
	State            PurchaseState `json:"state"`
	PurchasedAtBlock uint64        `json:"purchased_at_block"`
}
