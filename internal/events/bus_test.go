package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"MiniMarket/internal/store"
)

const owner = store.Address("0x00000000000000000000000000000000000000a1")

type memSink struct {
	mu   sync.Mutex
	envs []Envelope
	err  error
	gate chan struct{}
}

func (s *memSink) Name() string { return "mem" }

func (s *memSink) Publish(_ context.Context, env Envelope) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.envs = append(s.envs, env)
	return nil
}

func TestBus_JournalFollowsStoreCommits(t *testing.T) {
	bus := NewBus("market", zap.NewNop())
	s := store.New(owner, store.WithNotifier(bus))

	id, err := s.AddProduct(store.Env{Caller: owner}, "scissors", 10, 1)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := s.AddProduct(store.Env{Caller: owner}, "scissors", 10, 1); err == nil {
		t.Fatalf("duplicate add succeeded")
	}
	if err := s.SetProductQuantity(store.Env{Caller: owner}, id, 4); err != nil {
		t.Fatalf("set: %v", err)
	}

	all := bus.Since(0, 0)
	if len(all) != 2 {
		t.Fatalf("journal=%d want=2", len(all))
	}
	if all[0].EventType != store.KindAddProduct || all[0].Seq != 1 {
		t.Fatalf("first=%+v", all[0])
	}
	if all[1].EventType != store.KindSetProductQuantity || all[1].Seq != 2 {
		t.Fatalf("second=%+v", all[1])
	}
	if all[0].EventID == "" || all[0].EventID == all[1].EventID {
		t.Fatalf("event ids not unique")
	}

	ev, err := Decode(all[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := store.AddProductEvent{ID: id, Name: "scissors", Price: 10, Quantity: 1}
	if ev != want {
		t.Fatalf("decoded=%+v want=%+v", ev, want)
	}

	if got := bus.Since(1, 0); len(got) != 1 || got[0].Seq != 2 {
		t.Fatalf("since(1)=%+v", got)
	}
	if got := bus.Since(0, 1); len(got) != 1 || got[0].Seq != 1 {
		t.Fatalf("since(0, 1)=%+v", got)
	}
	if got := bus.Since(5, 0); len(got) != 0 {
		t.Fatalf("since(5)=%+v", got)
	}
}

func TestBus_DeliversToSinksAfterFailures(t *testing.T) {
	bad := &memSink{err: errors.New("broker down")}
	good := &memSink{}
	reg := prometheus.NewRegistry()
	metrics := NewMetricsSink(reg)

	bus := NewBus("market", zap.NewNop(), bad, good, metrics)
	bus.Start(context.Background())

	s := store.New(owner, store.WithNotifier(bus))
	id, err := s.AddProduct(store.Env{Caller: owner}, "scissors", 10, 2)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.BuyProduct(store.Env{Caller: "0xb", Value: 10, Block: 1}, id); err != nil {
		t.Fatalf("buy: %v", err)
	}

	bus.Close()
	bus.Close()

	if len(good.envs) != 2 {
		t.Fatalf("delivered=%d want=2", len(good.envs))
	}
	if good.envs[1].EventType != store.KindBuyProduct || good.envs[1].ProductID != uint64(id) {
		t.Fatalf("second=%+v", good.envs[1])
	}
	if v := testutil.ToFloat64(metrics.published.WithLabelValues(store.KindBuyProduct)); v != 1 {
		t.Fatalf("metric=%v", v)
	}

	// after Close the journal still records events
	if err := s.SetProductQuantity(store.Env{Caller: owner}, id, 9); err != nil {
		t.Fatalf("set: %v", err)
	}
	if bus.Len() != 3 || len(good.envs) != 2 {
		t.Fatalf("journal=%d delivered=%d", bus.Len(), len(good.envs))
	}
}

func TestDecode_UnknownType(t *testing.T) {
	if _, err := Decode(Envelope{EventType: "Nope"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestBus_SlowSinkMissesNothing(t *testing.T) {
	const updates = 1100

	gate := make(chan struct{})
	slow := &memSink{gate: gate}
	bus := NewBus("market", zap.NewNop(), slow)
	bus.Start(context.Background())

	s := store.New(owner, store.WithNotifier(bus))
	id, err := s.AddProduct(store.Env{Caller: owner}, "scissors", 10, 1)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	for i := 0; i < updates; i++ {
		if err := s.SetProductQuantity(store.Env{Caller: owner}, id, uint64(i)); err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
	}

	close(gate)
	bus.Close()

	if len(slow.envs) != updates+1 {
		t.Fatalf("journal=%d delivered=%d", bus.Len(), len(slow.envs))
	}
	for i, env := range slow.envs {
		if env.Seq != uint64(i)+1 {
			t.Fatalf("envelope %d has seq %d", i, env.Seq)
		}
	}
}

func TestBus_EnvelopesCarryDeployment(t *testing.T) {
	first := NewBus("market", zap.NewNop())
	second := NewBus("market", zap.NewNop())
	if first.Deployment() == "" || first.Deployment() == second.Deployment() {
		t.Fatalf("deployments %q and %q", first.Deployment(), second.Deployment())
	}

	s := store.New(owner, store.WithNotifier(first))
	if _, err := s.AddProduct(store.Env{Caller: owner}, "scissors", 10, 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := first.Since(0, 0)[0].Deployment; got != first.Deployment() {
		t.Fatalf("deployment=%q want=%q", got, first.Deployment())
	}
}
