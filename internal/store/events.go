package store

const (
	KindAddProduct         = "AddProduct"
	KindSetProductQuantity = "SetProductQuantity"
	KindBuyProduct         = "BuyProduct"
	KindReturnProduct      = "ReturnProduct"
)

// Event is a notification emitted after a successful mutation.
type Event interface {
	Kind() string
	Product() ProductID
}

type AddProductEvent struct {
	ID       ProductID `json:"id"`
	Name     string    `json:"name"`
	Price    uint64    `json:"price"`
	Quantity uint64    `json:"quantity"`
}

type SetProductQuantityEvent struct {
	ID       ProductID `json:"id"`
	Quantity uint64    `json:"quantity"`
}

type BuyProductEvent struct {
	ID    ProductID `json:"id"`
	Buyer Address   `json:"buyer"`
	Block uint64    `json:"block"`
}

type ReturnProductEvent struct {
	ID    ProductID `json:"id"`
	Buyer Address   `json:"buyer"`
	Block uint64    `json:"block"`
}

func (AddProductEvent) Kind() string         { return KindAddProduct }
func (SetProductQuantityEvent) Kind() string { return KindSetProductQuantity }
func (BuyProductEvent) Kind() string         { return KindBuyProduct }
func (ReturnProductEvent) Kind() string      { return KindReturnProduct }

func (e AddProductEvent) Product() ProductID         { return e.ID }
func (e SetProductQuantityEvent) Product() ProductID { return e.ID }
func (e BuyProductEvent) Product() ProductID         { return e.ID }
func (e ReturnProductEvent) Product() ProductID      { return e.ID }

// Notifier receives events in commit order. Notify is called with the store
// lock held and must not call back into the store.
type Notifier interface {
	Notify(e Event)
}

type NotifierFunc func(e Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

type discard struct{}

func (discard) Notify(Event) {}
