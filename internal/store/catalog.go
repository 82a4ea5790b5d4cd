package store

import "slices"

func (s *Store) AddProduct(env Env, name string, price, quantity uint64) (ProductID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case !s.isOwner(env.Caller):
		return 0, ErrUnauthorized
	case name == "":
		return 0, ErrEmptyName
	case price == 0:
		return 0, ErrZeroPrice
	case quantity == 0:
		return 0, ErrZeroQuantity
	}
	if _, dup := s.byName[name]; dup {
		return 0, ErrDuplicateProduct
	}

	id := ProductID(len(s.products))
	s.products = append(s.products, Product{ID: id, Name: name, Price: price, Quantity: quantity})
	s.purchases = append(s.purchases, map[Address]*Purchase{})
	s.byName[name] = id

	s.notify.Notify(AddProductEvent{ID: id, Name: name, Price: price, Quantity: quantity})
	return id, nil
}

func (s *Store) SetProductQuantity(env Env, id ProductID, quantity uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isOwner(env.Caller) {
		return ErrUnauthorized
	}
	if !s.exists(id) {
		return ErrProductNotFound
	}

	s.products[id].Quantity = quantity

	s.notify.Notify(SetProductQuantityEvent{ID: id, Quantity: quantity})
	return nil
}

func (s *Store) GetProduct(id ProductID) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.exists(id) {
		return Product{}, ErrProductNotFound
	}
	return s.products[id], nil
}

// AvailableProducts returns the ids of products with stock left, ascending.
func (s *Store) AvailableProducts() []ProductID {
	out := slices.Collect(s.Available())
	if out == nil {
		out = []ProductID{}
	}
	return out
}
