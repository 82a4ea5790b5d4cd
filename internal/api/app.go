package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"MiniMarket/internal/auth"
	"MiniMarket/internal/chain"
	"MiniMarket/internal/events"
	"MiniMarket/internal/identity"
	"MiniMarket/internal/store"
	"MiniMarket/pkg/kit"
)

const (
	defaultEventsLimit = 100
	maxEventsLimit     = 1000
	maxMineBlocks      = 1_000_000
)

type Server struct {
	Store  *store.Store
	Chain  *chain.Chain
	Events *events.Bus
	Log    *zap.Logger
}

type addProductReq struct {
	Name     string `json:"name"`
	Price    uint64 `json:"price"`
	Quantity uint64 `json:"quantity"`
}

type setQuantityReq struct {
	Quantity *uint64 `json:"quantity"`
}

type buyReq struct {
	Value uint64 `json:"value"`
}

type mineReq struct {
	Blocks uint64 `json:"blocks"`
}

type faucetReq struct {
	Amount uint64 `json:"amount"`
}

type callResp struct {
	Receipt chain.Receipt  `json:"receipt"`
	Product *store.Product `json:"product,omitempty"`
}

func (s *Server) handleAvailable(w http.ResponseWriter, _ *http.Request) {
	kit.WriteJSON(w, http.StatusOK, s.Store.AvailableProducts())
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	kit.WriteJSON(w, http.StatusOK, s.Store.Products())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	p, err := s.Store.GetProduct(id)
	if err != nil {
		s.writeCallError(w, r, "getProduct", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, p)
}

func (s *Server) handleOwner(w http.ResponseWriter, _ *http.Request) {
	kit.WriteJSON(w, http.StatusOK, map[string]any{
		"owner":      s.Store.Owner(),
		"deployment": s.Events.Deployment(),
	})
}

func (s *Server) handleEscrow(w http.ResponseWriter, _ *http.Request) {
	kit.WriteJSON(w, http.StatusOK, map[string]any{"escrow": s.Store.Escrow()})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	after, err := queryUint(r, "after", 0)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad after", nil)
		return
	}
	limit, err := queryUint(r, "limit", defaultEventsLimit)
	if err != nil || limit == 0 || limit > maxEventsLimit {
		kit.WriteError(w, r, http.StatusBadRequest, "bad limit", map[string]any{"max": maxEventsLimit})
		return
	}
	kit.WriteJSON(w, http.StatusOK, s.Events.Since(after, int(limit)))
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	req, err := kit.DecodeJSON[addProductReq](w, r)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}

	resp, ok := s.call(w, r, 0, "addProduct", func(env store.Env) (store.ProductID, error) {
		return s.Store.AddProduct(env, req.Name, req.Price, req.Quantity)
	})
	if !ok {
		return
	}
	kit.WriteJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	req, err := kit.DecodeJSON[setQuantityReq](w, r)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}
	if req.Quantity == nil {
		kit.WriteError(w, r, http.StatusBadRequest, "quantity required", nil)
		return
	}

	resp, ok := s.call(w, r, 0, "setProductQuantity", func(env store.Env) (store.ProductID, error) {
		return id, s.Store.SetProductQuantity(env, id, *req.Quantity)
	})
	if !ok {
		return
	}
	kit.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	req, err := kit.DecodeJSON[buyReq](w, r)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}

	resp, ok := s.call(w, r, req.Value, "buyProduct", func(env store.Env) (store.ProductID, error) {
		return id, s.Store.BuyProduct(env, id)
	})
	if !ok {
		return
	}
	kit.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	resp, ok := s.call(w, r, 0, "returnProduct", func(env store.Env) (store.ProductID, error) {
		return id, s.Store.ReturnProduct(env, id)
	})
	if !ok {
		return
	}
	kit.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHead(w http.ResponseWriter, _ *http.Request) {
	kit.WriteJSON(w, http.StatusOK, map[string]any{"height": s.Chain.Height()})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	a, ok := address(w, r)
	if !ok {
		return
	}
	kit.WriteJSON(w, http.StatusOK, map[string]any{"address": a, "balance": s.Chain.Balance(a)})
}

func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	req, err := kit.DecodeJSON[mineReq](w, r)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}
	if req.Blocks == 0 {
		req.Blocks = 1
	}
	if req.Blocks > maxMineBlocks {
		kit.WriteError(w, r, http.StatusBadRequest, "too many blocks", map[string]any{"max": maxMineBlocks})
		return
	}
	kit.WriteJSON(w, http.StatusOK, map[string]any{"height": s.Chain.Mine(req.Blocks)})
}

func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	a, ok := address(w, r)
	if !ok {
		return
	}
	req, err := kit.DecodeJSON[faucetReq](w, r)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}
	if err := s.Chain.Fund(a, req.Amount); err != nil {
		kit.WriteError(w, r, http.StatusConflict, err.Error(), nil)
		return
	}
	kit.WriteJSON(w, http.StatusOK, map[string]any{"address": a, "balance": s.Chain.Balance(a)})
}

// call admits fn on the chain as the authenticated caller. The product fn
// touched is read before the chain admits the next call, so the response
// shows exactly the state this call left behind. call writes the error
// response itself and reports whether the call committed.
func (s *Server) call(w http.ResponseWriter, r *http.Request, value uint64, op string, fn func(store.Env) (store.ProductID, error)) (callResp, bool) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		kit.WriteError(w, r, http.StatusUnauthorized, "no caller", nil)
		return callResp{}, false
	}

	var product *store.Product
	rcpt, err := s.Chain.Call(caller, value, func(env store.Env) error {
		id, err := fn(env)
		if err != nil {
			return err
		}
		if p, err := s.Store.GetProduct(id); err == nil {
			product = &p
		}
		return nil
	})
	if err != nil {
		s.writeCallError(w, r, op, err)
		return callResp{}, false
	}

	s.log().Info("call committed",
		zap.String("op", op),
		zap.String("caller", string(caller)),
		zap.Uint64("value", value),
		zap.Uint64("block", rcpt.Block),
		zap.Uint64("seq", rcpt.Seq),
	)
	return callResp{Receipt: rcpt, Product: product}, true
}

func (s *Server) writeCallError(w http.ResponseWriter, r *http.Request, op string, err error) {
	ce, ok := classify(err)
	if !ok {
		s.log().Error("call failed", zap.String("op", op), zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}
	kit.WriteError(w, r, ce.status, ce.code, map[string]any{"reason": ce.reason})
}

func (s *Server) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func productID(w http.ResponseWriter, r *http.Request) (store.ProductID, bool) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad id", map[string]any{"id": raw})
		return 0, false
	}
	return store.ProductID(n), true
}

func address(w http.ResponseWriter, r *http.Request) (store.Address, bool) {
	raw := chi.URLParam(r, "address")
	a, err := identity.Parse(raw)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad address", map[string]any{"cause": err.Error()})
		return "", false
	}
	return a, true
}

func queryUint(r *http.Request, k string, def uint64) (uint64, error) {
	v := r.URL.Query().Get(k)
	if v == "" {
		return def, nil
	}
	return strconv.ParseUint(v, 10, 64)
}

// Check is a named readiness probe.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

const readyTimeout = 1 * time.Second

func readyz(checks []Check, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		for _, c := range checks {
			if err := c.Ping(ctx); err != nil {
				if log != nil {
					log.Warn("readyz failed", zap.String("check", c.Name), zap.Error(err))
				}
				kit.WriteError(w, r, http.StatusServiceUnavailable, c.Name+" not ready", nil)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}
