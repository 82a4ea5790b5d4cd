//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"testing"
	"time"

	"MiniMarket/internal/auth"
	"MiniMarket/internal/identity"
)

var (
	baseURL    = getenv("E2E_BASE_URL", "http://localhost:8080")
	indexerURL = getenv("E2E_INDEXER_URL", "")
)

func TestSystem_E2E_BuyAndReturn(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	waitReady(t, ctx, baseURL+"/readyz")

	secret := os.Getenv("E2E_JWT_SECRET")
	if secret == "" {
		t.Skip("E2E_JWT_SECRET not set")
	}
	owner := identity.MustParse(getenv("E2E_OWNER", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"))
	buyer := identity.MustParse("0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359")

	tm := auth.NewTokenMaker(secret)
	ownerTok, err := tm.New(owner, time.Minute)
	if err != nil {
		t.Fatalf("owner token: %v", err)
	}
	buyerTok, err := tm.New(buyer, time.Minute)
	if err != nil {
		t.Fatalf("buyer token: %v", err)
	}

	doJSON(t, http.MethodPost, baseURL+"/accounts/"+string(buyer)+"/faucet", map[string]any{
		"amount": 1_000,
	}, nil, 200)

	name := fmt.Sprintf("item_%d_%d", time.Now().Unix(), rand.Intn(100000))

	var created struct {
		Product struct {
			ID uint64 `json:"id"`
		} `json:"product"`
	}
	doJSONAuth(t, http.MethodPost, baseURL+"/products", ownerTok, map[string]any{
		"name":     name,
		"price":    100,
		"quantity": 1,
	}, &created, 201)

	productURL := fmt.Sprintf("%s/products/%d", baseURL, created.Product.ID)

	doJSONAuth(t, http.MethodPost, productURL+"/buy", buyerTok, map[string]any{"value": 100}, nil, 200)
	doJSONAuth(t, http.MethodPost, productURL+"/buy", buyerTok, map[string]any{"value": 100}, nil, 409)

	var p struct {
		Quantity uint64 `json:"quantity"`
	}
	doJSON(t, http.MethodGet, productURL, nil, &p, 200)
	if p.Quantity != 0 {
		t.Fatalf("quantity after buy=%d want=0", p.Quantity)
	}

	doJSONAuth(t, http.MethodPost, productURL+"/return", buyerTok, nil, nil, 200)
	doJSONAuth(t, http.MethodPost, productURL+"/buy", buyerTok, map[string]any{"value": 100}, nil, 409)

	doJSON(t, http.MethodGet, productURL, nil, &p, 200)
	if p.Quantity != 1 {
		t.Fatalf("quantity after return=%d want=1", p.Quantity)
	}

	if indexerURL == "" {
		return
	}

	var info struct {
		Deployment string `json:"deployment"`
	}
	doJSON(t, http.MethodGet, baseURL+"/owner", nil, &info, 200)
	if info.Deployment == "" {
		t.Fatalf("deployment id missing")
	}
	waitIndexed(t, ctx, info.Deployment, name)

	if os.Getenv("E2E_RESTART_INDEXER") == "1" {
		restartService(t, ctx, "indexer")
		waitReady(t, ctx, indexerURL+"/readyz")
		waitIndexed(t, ctx, info.Deployment, name)
	}
}

func waitIndexed(t *testing.T, ctx context.Context, deployment, name string) {
	t.Helper()

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) && ctx.Err() == nil {
		var products []struct {
			Name string `json:"name"`
		}
		doJSON(t, http.MethodGet, indexerURL+"/products?deployment="+deployment, nil, &products, 200)
		for _, p := range products {
			if p.Name == name {
				return
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("product %q never reached the indexer", name)
}

func waitReady(t *testing.T, ctx context.Context, url string) {
	t.Helper()
	client := &http.Client{Timeout: 2 * time.Second}

	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := client.Do(req)
		if err == nil && resp != nil && resp.StatusCode == 200 {
			_ = resp.Body.Close()
			return
		}
		if resp != nil {
			_ = resp.Body.Close()
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("service not ready: %s", url)
}

func doJSON(t *testing.T, method, url string, body any, out any, want int) {
	t.Helper()
	doJSONAuth(t, method, url, "", body, out, want)
}

func doJSONAuth(t *testing.T, method, url, token string, body any, out any, want int) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		t.Fatalf("%s %s: status=%d want=%d", method, url, resp.StatusCode, want)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
