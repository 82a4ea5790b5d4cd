package store

import "math"

func (s *Store) BuyProduct(env Env, id ProductID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.exists(id) {
		return ErrProductNotFound
	}
	p := &s.products[id]
	if env.Value != p.Price {
		return ErrIncorrectPayment
	}
	if p.Quantity == 0 {
		return ErrOutOfStock
	}
	if rec, ok := s.purchases[id][env.Caller]; ok {
		switch rec.State {
		case Active:
			return ErrAlreadyPurchased
		case Refunded:
			return ErrRefundedCannotRebuy
		}
	}
	if s.escrow > math.MaxUint64-env.Value {
		return ErrEscrowOverflow
	}

	p.Quantity--
	s.purchases[id][env.Caller] = &Purchase{
		Buyer:            env.Caller,
		State:            Active,
		PurchasedAtBlock: env.Block,
	}
	s.escrow += env.Value

	s.notify.Notify(BuyProductEvent{ID: id, Buyer: env.Caller, Block: env.Block})
	return nil
}

// ReturnProduct refunds the caller's active purchase of id if it was bought at
// most ReturnWindow blocks ago. The refund goes through env.Bank before any
// state changes; if the transfer fails nothing is mutated.
func (s *Store) ReturnProduct(env Env, id ProductID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.exists(id) {
		return ErrProductNotFound
	}
	rec, ok := s.purchases[id][env.Caller]
	if !ok || rec.State != Active {
		return ErrNotPurchased
	}
	if env.Block < rec.PurchasedAtBlock || env.Block-rec.PurchasedAtBlock > s.returnWindow {
		return ErrReturnWindowExpired
	}

	p := &s.products[id]
	if env.Bank == nil {
		return &refundError{cause: errNoBank}
	}
	if err := env.Bank.Credit(env.Caller, p.Price); err != nil {
		return &refundError{cause: err}
	}

	p.Quantity++
	rec.State = Refunded
	s.escrow -= p.Price

	s.notify.Notify(ReturnProductEvent{ID: id, Buyer: env.Caller, Block: env.Block})
	return nil
}
