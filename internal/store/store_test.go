package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	owner = Address("0x00000000000000000000000000000000000000a1")
	alice = Address("0x00000000000000000000000000000000000000b2")
	bob   = Address("0x00000000000000000000000000000000000000c3")
)

type bank struct {
	balances map[Address]uint64
	fail     error
}

func newBank() *bank { return &bank{balances: map[Address]uint64{}} }

func (b *bank) Credit(to Address, amount uint64) error {
	if b.fail != nil {
		return b.fail
	}
	b.balances[to] += amount
	return nil
}

type recorder struct {
	events []Event
}

func (r *recorder) Notify(e Event) { r.events = append(r.events, e) }

func newTestStore(t *testing.T) (*Store, *recorder) {
	t.Helper()
	rec := &recorder{}
	return New(owner, WithNotifier(rec)), rec
}

func as(caller Address) Env { return Env{Caller: caller} }

func TestAddProduct_OnlyOwner(t *testing.T) {
	s, rec := newTestStore(t)

	_, err := s.AddProduct(as(alice), "scissors", 10, 1)
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Zero(t, s.ProductCount())
	require.Empty(t, rec.events)
}

func TestAddProduct_StoresValuesAndAssignsSequentialIDs(t *testing.T) {
	s, _ := newTestStore(t)

	names := []string{"scissors", "paper", "rock"}
	for i, name := range names {
		id, err := s.AddProduct(as(owner), name, uint64(i+1)*100, uint64(i+5))
		require.NoError(t, err)
		require.Equal(t, ProductID(i), id)

		p, err := s.GetProduct(id)
		require.NoError(t, err)
		require.Equal(t, Product{ID: id, Name: name, Price: uint64(i+1) * 100, Quantity: uint64(i + 5)}, p)
	}
}

func TestAddProduct_EmitsEvent(t *testing.T) {
	s, rec := newTestStore(t)

	id, err := s.AddProduct(as(owner), "scissors", 10, 3)
	require.NoError(t, err)
	require.Equal(t, []Event{AddProductEvent{ID: id, Name: "scissors", Price: 10, Quantity: 3}}, rec.events)
}

func TestAddProduct_GuardOrder(t *testing.T) {
	tests := []struct {
		name     string
		caller   Address
		product  string
		price    uint64
		quantity uint64
		want     error
	}{
		{"stranger with bad input", alice, "", 0, 0, ErrUnauthorized},
		{"empty name first", owner, "", 0, 0, ErrEmptyName},
		{"zero price before zero quantity", owner, "x", 0, 0, ErrZeroPrice},
		{"zero quantity", owner, "x", 1, 0, ErrZeroQuantity},
		{"duplicate", owner, "scissors", 99, 99, ErrDuplicateProduct},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newTestStore(t)
			_, err := s.AddProduct(as(owner), "scissors", 10, 1)
			require.NoError(t, err)

			_, err = s.AddProduct(as(tc.caller), tc.product, tc.price, tc.quantity)
			require.ErrorIs(t, err, tc.want)
			require.Equal(t, 1, s.ProductCount())
		})
	}
}

func TestAddProduct_NamesAreCaseSensitive(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.AddProduct(as(owner), "Scissors", 10, 1)
	require.NoError(t, err)
	_, err = s.AddProduct(as(owner), "scissors", 10, 1)
	require.NoError(t, err)
}

func TestAddProduct_DuplicateStaysBlockedAfterSellOut(t *testing.T) {
	s, _ := newTestStore(t)

	id, err := s.AddProduct(as(owner), "scissors", 10, 1)
	require.NoError(t, err)
	require.NoError(t, s.SetProductQuantity(as(owner), id, 0))

	_, err = s.AddProduct(as(owner), "scissors", 20, 4)
	require.ErrorIs(t, err, ErrDuplicateProduct)
}

func TestSetProductQuantity(t *testing.T) {
	s, rec := newTestStore(t)
	id, err := s.AddProduct(as(owner), "scissors", 10, 1)
	require.NoError(t, err)

	t.Run("only owner", func(t *testing.T) {
		require.ErrorIs(t, s.SetProductQuantity(as(alice), id, 7), ErrUnauthorized)
		p, _ := s.GetProduct(id)
		require.EqualValues(t, 1, p.Quantity)
	})

	t.Run("updates quantity", func(t *testing.T) {
		require.NoError(t, s.SetProductQuantity(as(owner), id, 7))
		p, _ := s.GetProduct(id)
		require.EqualValues(t, 7, p.Quantity)
		require.Equal(t, SetProductQuantityEvent{ID: id, Quantity: 7}, rec.events[len(rec.events)-1])
	})

	t.Run("non-existent product", func(t *testing.T) {
		require.ErrorIs(t, s.SetProductQuantity(as(owner), 42, 7), ErrProductNotFound)
	})

	t.Run("stranger on missing product is unauthorized", func(t *testing.T) {
		require.ErrorIs(t, s.SetProductQuantity(as(alice), 42, 7), ErrUnauthorized)
	})
}

func TestGetProduct_NotFound(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.GetProduct(0)
	require.ErrorIs(t, err, ErrProductNotFound)
	require.Equal(t, "ProductNotFound", Code(err))
}

func TestAvailableProducts(t *testing.T) {
	s, _ := newTestStore(t)
	require.Equal(t, []ProductID{}, s.AvailableProducts())

	for _, name := range []string{"a", "b", "c", "d"} {
		_, err := s.AddProduct(as(owner), name, 10, 1)
		require.NoError(t, err)
	}

	require.NoError(t, s.BuyProduct(Env{Caller: alice, Value: 10}, 1))
	require.Equal(t, []ProductID{0, 2, 3}, s.AvailableProducts())

	require.NoError(t, s.SetProductQuantity(as(owner), 1, 2))
	require.Equal(t, []ProductID{0, 1, 2, 3}, s.AvailableProducts())

	require.NoError(t, s.SetProductQuantity(as(owner), 3, 0))
	require.Equal(t, []ProductID{0, 1, 2}, s.AvailableProducts())
}

func TestAvailable_StopsEarly(t *testing.T) {
	s, _ := newTestStore(t)
	for _, name := range []string{"a", "b", "c"} {
		_, err := s.AddProduct(as(owner), name, 10, 1)
		require.NoError(t, err)
	}

	var seen []ProductID
	for id := range s.Available() {
		seen = append(seen, id)
		if len(seen) == 2 {
			break
		}
	}
	require.Equal(t, []ProductID{0, 1}, seen)
}

func TestCode_UnknownError(t *testing.T) {
	require.Equal(t, "", Code(errors.New("boom")))
	require.Equal(t, "", Code(nil))
}
