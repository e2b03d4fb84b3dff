package horizon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ledger_go/internal/domain"
	"ledger_go/internal/infra"

	"github.com/shopspring/decimal"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &infra.Config{}
	cfg.Ledger.Endpoints = []string{srv.URL}
	cfg.Ledger.RequestTimeoutSec = 5
	cfg.Ledger.NetworkPassphrase = "Test Ledger Network"
	cfg.Ledger.BaseFeeStroops = 100

	pool := infra.NewEndpointPool(cfg.Ledger.Endpoints, nil, time.Minute, time.Minute, nil)
	signer, err := NewKeySigner(testSeed)
	if err != nil {
		t.Fatalf("NewKeySigner failed: %v", err)
	}
	return NewClient(cfg, pool, signer, nil)
}

func testOrder() *domain.Order {
	return &domain.Order{
		ID:        "ord-1",
		AccountID: "GAACCOUNT",
		Selling:   domain.NativeAsset(),
		Buying:    domain.Asset{Code: "USD", Issuer: "GAISSUER"},
		Amount:    decimal.NewFromInt(100),
		Price:     decimal.NewFromFloat(0.25),
	}
}

func TestFetchAccount(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/GAACCOUNT" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(accountResponse{
			AccountID: "GAACCOUNT",
			Sequence:  "9007199254740993", // beyond float64 precision
			Balances: []balanceEntry{
				{AssetCode: "XLM", Balance: "100.5"},
				{AssetCode: "USD", AssetIssuer: "GAISSUER", Balance: "42"},
			},
		})
	}))

	acct, err := c.FetchAccount(context.Background(), "GAACCOUNT")
	if err != nil {
		t.Fatalf("FetchAccount failed: %v", err)
	}
	if acct.Sequence != 9007199254740993 {
		t.Errorf("sequence = %d, want 9007199254740993", acct.Sequence)
	}
	if !acct.Balances["USD:GAISSUER"].Equal(decimal.NewFromInt(42)) {
		t.Errorf("USD balance = %s, want 42", acct.Balances["USD:GAISSUER"])
	}
}

func TestSubmitOrder_Accepted(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Signature == "" || req.PublicKey == "" {
			t.Error("submit request is unsigned")
		}
		if req.Envelope.Sequence != 101 {
			t.Errorf("sequence = %d, want 101", req.Envelope.Sequence)
		}
		if req.Envelope.Operation.Amount != "100" {
			t.Errorf("amount = %s, want 100", req.Envelope.Operation.Amount)
		}
		json.NewEncoder(w).Encode(submitResponse{Hash: "txhash-1", OfferID: 77})
	}))

	res, err := c.SubmitOrder(context.Background(), testOrder(), 101)
	if err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}
	if res.SettlementRef != "txhash-1" || res.OfferID != 77 {
		t.Errorf("result = %+v", res)
	}
}

func TestSubmitOrder_BadSequence(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(submitResponse{Code: "tx_bad_seq", Detail: "sequence mismatch"})
	}))

	_, err := c.SubmitOrder(context.Background(), testOrder(), 101)
	var seqErr *domain.SequenceConflictError
	if !errors.As(err, &seqErr) {
		t.Fatalf("expected SequenceConflictError, got %v", err)
	}
	if seqErr.AccountID != "GAACCOUNT" {
		t.Errorf("account = %s", seqErr.AccountID)
	}
	if !domain.IsRetriable(err) {
		t.Error("sequence conflict must be retriable")
	}
}

func TestSubmitOrder_ServerError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(submitResponse{Code: "server_busy"})
	}))

	_, err := c.SubmitOrder(context.Background(), testOrder(), 101)
	var netErr *domain.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if !netErr.IsRetriable() {
		t.Error("5xx must be retriable")
	}
	if netErr.Endpoint == "" {
		t.Error("network error must carry the endpoint for failover reporting")
	}
}

func TestSubmitOrder_SignerUnavailable(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unsigned client must not reach the wire")
	}))
	c.signing = NoSigner{}

	_, err := c.SubmitOrder(context.Background(), testOrder(), 101)
	if !errors.Is(err, domain.ErrSignerUnavailable) {
		t.Fatalf("expected ErrSignerUnavailable, got %v", err)
	}
}

func TestSubmitCancel_DeletesOffer(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Envelope.Operation.Amount != "0" {
			t.Errorf("cancel amount = %s, want 0", req.Envelope.Operation.Amount)
		}
		if req.Envelope.Operation.OfferID != 77 {
			t.Errorf("offer id = %d, want 77", req.Envelope.Operation.OfferID)
		}
		json.NewEncoder(w).Encode(submitResponse{Hash: "txhash-2"})
	}))

	o := testOrder()
	o.OfferID = 77
	res, err := c.SubmitCancel(context.Background(), o, 102)
	if err != nil {
		t.Fatalf("SubmitCancel failed: %v", err)
	}
	if res.SettlementRef != "txhash-2" {
		t.Errorf("settlement ref = %s", res.SettlementRef)
	}
}

func TestFetchOfferStatus(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/accounts/GAACCOUNT/offers/77" {
			json.NewEncoder(w).Encode(offerResponse{ID: 77, Amount: "31.5"})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	status, err := c.FetchOfferStatus(context.Background(), "GAACCOUNT", 77)
	if err != nil {
		t.Fatalf("FetchOfferStatus failed: %v", err)
	}
	if !status.Remaining.Equal(decimal.NewFromFloat(31.5)) {
		t.Errorf("remaining = %s, want 31.5", status.Remaining)
	}

	_, err = c.FetchOfferStatus(context.Background(), "GAACCOUNT", 99)
	if !errors.Is(err, domain.ErrOfferNotFound) {
		t.Fatalf("expected ErrOfferNotFound, got %v", err)
	}
}

func TestProbe(t *testing.T) {
	healthy := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	ok, err := healthy.Probe(context.Background(), healthy.pool.ActiveEndpoint().Address)
	if err != nil || !ok {
		t.Errorf("healthy probe = (%v, %v), want (true, nil)", ok, err)
	}

	failing := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	ok, err = failing.Probe(context.Background(), failing.pool.ActiveEndpoint().Address)
	if err != nil || ok {
		t.Errorf("failing probe = (%v, %v), want (false, nil)", ok, err)
	}

	// Unreachable address is a remote verdict, not a local error.
	ok, err = healthy.Probe(context.Background(), "http://127.0.0.1:1")
	if err != nil || ok {
		t.Errorf("unreachable probe = (%v, %v), want (false, nil)", ok, err)
	}
}
