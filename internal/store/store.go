// Package store holds the marketplace ledger: a single-owner product catalog,
// per-buyer purchase records with a block-bounded return window, and the
// escrowed value of every purchase that has not been returned.
//
// Every operation checks all of its guards before it mutates anything, so a
// call that returns an error leaves the store exactly as it found it.
package store

import (
	"iter"
	"slices"
	"sync"
)

const DefaultReturnWindow uint64 = 100

type Option func(*Store)

// WithReturnWindow sets how many blocks after a purchase a return is still
// accepted. The bound is inclusive.
func WithReturnWindow(blocks uint64) Option {
	return func(s *Store) { s.returnWindow = blocks }
}

func WithNotifier(n Notifier) Option {
	return func(s *Store) {
		if n != nil {
			s.notify = n
		}
	}
}

type config struct {
	owner Address
}

type Store struct {
	mu sync.RWMutex

	cfg          config
	returnWindow uint64
	notify       Notifier

	products  []Product
	byName    map[string]ProductID
	purchases []map[Address]*Purchase
	escrow    uint64
}

// New deploys a store owned by deployer.
func New(deployer Address, opts ...Option) *Store {
	s := &Store{
		cfg:          config{owner: deployer},
		returnWindow: DefaultReturnWindow,
		notify:       discard{},
		byName:       map[string]ProductID{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Owner() Address { return s.cfg.owner }

func (s *Store) ReturnWindow() uint64 { return s.returnWindow }

// Escrow is the value currently held for purchases that were not returned.
func (s *Store) Escrow() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.escrow
}

func (s *Store) ProductCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products)
}

// PurchaseOf reports the purchase record of buyer for product id. A buyer
// that never bought gets a zero record in state NeverBought.
func (s *Store) PurchaseOf(id ProductID, buyer Address) (Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.exists(id) {
		return Purchase{}, ErrProductNotFound
	}
	if p, ok := s.purchases[id][buyer]; ok {
		return *p, nil
	}
	return Purchase{Buyer: buyer, State: NeverBought}, nil
}

// ActiveEscrow sums the prices of all active purchases. It always equals
// Escrow; it exists so the two can be compared.
func (s *Store) ActiveEscrow() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total uint64
	for id, byBuyer := range s.purchases {
		for _, p := range byBuyer {
			if p.State == Active {
				total += s.products[id].Price
			}
		}
	}
	return total
}

func (s *Store) exists(id ProductID) bool {
	return uint64(id) < uint64(len(s.products))
}

func (s *Store) isOwner(caller Address) bool {
	return caller == s.cfg.owner
}

// Products yields a copy of every product in id order.
func (s *Store) Products() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.products)
}

// Available yields the ids of products in stock, in ascending order. Each
// iteration reads current storage; nothing is cached between iterations.
// The read lock is held while the loop body runs, so the body must not call
// mutating store methods.
func (s *Store) Available() iter.Seq[ProductID] {
	return func(yield func(ProductID) bool) {
		s.mu.RLock()
		defer s.mu.RUnlock()

		for i := range s.products {
			if s.products[i].Quantity == 0 {
				continue
			}
			if !yield(s.products[i].ID) {
				return
			}
		}
	}
}
