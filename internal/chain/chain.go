// Package chain is the host execution environment the store runs in: a block
// height, native-value account balances, and a single admission lock that
// gives every external call its place in one total order.
package chain

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"MiniMarket/internal/store"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrRecipientRejects  = errors.New("recipient does not accept value")
	ErrBalanceOverflow   = errors.New("balance overflow")
)

type Receipt struct {
	Seq   uint64        `json:"seq"`
	Block uint64        `json:"block"`
	From  store.Address `json:"from"`
	Value uint64        `json:"value"`
	OK    bool          `json:"ok"`
	Error string        `json:"error,omitempty"`
}

type Option func(*Chain)

// WithAutomine mines a fresh block for every admitted call, the way a local
// development node does.
func WithAutomine(on bool) Option {
	return func(c *Chain) { c.automine = on }
}

func WithHeight(h uint64) Option {
	return func(c *Chain) { c.height = h }
}

func WithBalances(b map[store.Address]uint64) Option {
	return func(c *Chain) {
		for a, v := range b {
			c.balances[a] = v
		}
	}
}

type Chain struct {
	mu sync.Mutex

	height   uint64
	automine bool
	balances map[store.Address]uint64
	rejects  map[store.Address]bool
	receipts []Receipt
}

func New(opts ...Option) *Chain {
	c := &Chain{
		automine: true,
		balances: map[store.Address]uint64{},
		rejects:  map[store.Address]bool{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chain) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// Mine advances the height by n blocks and returns the new height.
func (c *Chain) Mine(n uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.height > math.MaxUint64-n {
		c.height = math.MaxUint64
	} else {
		c.height += n
	}
	return c.height
}

func (c *Chain) Balance(a store.Address) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[a]
}

// Fund mints amount into a. It is the development faucet.
func (c *Chain) Fund(a store.Address, amount uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.balances[a] > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	c.balances[a] += amount
	return nil
}

// RejectIncoming makes every transfer to a fail while on is set.
func (c *Chain) RejectIncoming(a store.Address, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if on {
		c.rejects[a] = true
		return
	}
	delete(c.rejects, a)
}

func (c *Chain) Receipts() []Receipt {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Receipt, len(c.receipts))
	copy(out, c.receipts)
	return out
}

// Call admits one call from `from` carrying value. The value is taken from
// the caller's balance before fn runs; if fn fails the value is returned and
// every credit fn made through env.Bank is undone, so a failed call moves no
// value at all.
func (c *Chain) Call(from store.Address, value uint64, fn func(env store.Env) error) (Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.automine && c.height < math.MaxUint64 {
		c.height++
	}

	r := Receipt{
		Seq:   uint64(len(c.receipts)),
		Block: c.height,
		From:  from,
		Value: value,
	}

	err := c.run(from, value, fn)
	if err != nil {
		r.Error = err.Error()
	} else {
		r.OK = true
	}
	c.receipts = append(c.receipts, r)

	return r, err
}

func (c *Chain) run(from store.Address, value uint64, fn func(env store.Env) error) error {
	if c.balances[from] < value {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, c.balances[from], value)
	}
	c.balances[from] -= value

	tx := &txBank{c: c}
	err := fn(store.Env{
		Caller: from,
		Value:  value,
		Block:  c.height,
		Bank:   tx,
	})
	if err != nil {
		tx.undo()
		c.balances[from] += value
		return err
	}
	return nil
}

type credit struct {
	to     store.Address
	amount uint64
}

// txBank credits accounts on behalf of the call currently holding the chain
// lock and remembers what it did so the call can be rolled back.
type txBank struct {
	c       *Chain
	credits []credit
}

func (b *txBank) Credit(to store.Address, amount uint64) error {
	if b.c.rejects[to] {
		return ErrRecipientRejects
	}
	if b.c.balances[to] > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	b.c.balances[to] += amount
	b.credits = append(b.credits, credit{to: to, amount: amount})
	return nil
}

func (b *txBank) undo() {
	for i := len(b.credits) - 1; i >= 0; i-- {
		cr := b.credits[i]
		b.c.balances[cr.to] -= cr.amount
	}
	b.credits = nil
}
