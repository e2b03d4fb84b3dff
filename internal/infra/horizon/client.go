package horizon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"ledger_go/internal/domain"
	"ledger_go/internal/infra"

	"github.com/shopspring/decimal"
)

// Client is the REST gateway to the remote ledger (Boundary Layer).
// Every request routes through the endpoint pool's active endpoint;
// failures are reported by the caller, not here, so retry policy stays
// in one place.
type Client struct {
	pool       *infra.EndpointPool
	httpClient *http.Client
	limiter    *infra.RateLimiter
	signing    SigningProvider
	passphrase string
	baseFee    int64
	logger     *slog.Logger
}

// NewClient creates a ledger gateway client.
func NewClient(cfg *infra.Config, pool *infra.EndpointPool, signing SigningProvider, limiter *infra.RateLimiter) *Client {
	return &Client{
		pool: pool,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout(),
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		limiter:    limiter,
		signing:    signing,
		passphrase: cfg.Ledger.NetworkPassphrase,
		baseFee:    cfg.Ledger.BaseFeeStroops,
		logger:     slog.Default().With("module", "horizon_client"),
	}
}

// FetchAccount retrieves the account's current ledger state, including
// the authoritative sequence number.
func (c *Client) FetchAccount(ctx context.Context, accountID string) (*domain.AccountDetail, error) {
	endpoint := c.pool.ActiveEndpoint().Address

	var resp accountResponse
	if err := c.getJSON(ctx, endpoint, "/accounts/"+accountID, &resp); err != nil {
		return nil, err
	}

	sequence, err := strconv.ParseInt(resp.Sequence, 10, 64)
	if err != nil {
		return nil, domain.NewFatalNetworkError("fetch_account", endpoint,
			fmt.Errorf("malformed sequence %q: %w", resp.Sequence, err))
	}

	balances := make(map[string]decimal.Decimal, len(resp.Balances))
	for _, b := range resp.Balances {
		amount, err := decimal.NewFromString(b.Balance)
		if err != nil {
			continue // skip malformed entries rather than failing the whole fetch
		}
		asset := domain.Asset{Code: b.AssetCode, Issuer: b.AssetIssuer}
		balances[asset.String()] = amount
	}

	return &domain.AccountDetail{
		AccountID:      resp.AccountID,
		Sequence:       sequence,
		Balances:       balances,
		SignerCount:    resp.SignerCount,
		DataEntryCount: resp.DataEntryCount,
		OpenOfferCount: resp.OpenOfferCount,
	}, nil
}

// SubmitOrder builds, signs and broadcasts an offer-create transaction.
func (c *Client) SubmitOrder(ctx context.Context, o *domain.Order, sequence int64) (*domain.SubmitResult, error) {
	op := txOperation{
		Type:          "manage_offer",
		SellingCode:   o.Selling.Code,
		SellingIssuer: o.Selling.Issuer,
		BuyingCode:    o.Buying.Code,
		BuyingIssuer:  o.Buying.Issuer,
		Amount:        o.Amount.String(),
		Price:         o.Price.String(),
		OfferID:       o.OfferID,
	}
	return c.broadcast(ctx, "submit_order", o.AccountID, sequence, op)
}

// SubmitCancel broadcasts an offer-delete (amount 0) for the order's
// existing offer.
func (c *Client) SubmitCancel(ctx context.Context, o *domain.Order, sequence int64) (*domain.SubmitResult, error) {
	op := txOperation{
		Type:          "manage_offer",
		SellingCode:   o.Selling.Code,
		SellingIssuer: o.Selling.Issuer,
		BuyingCode:    o.Buying.Code,
		BuyingIssuer:  o.Buying.Issuer,
		Amount:        "0",
		Price:         o.Price.String(),
		OfferID:       o.OfferID,
	}
	return c.broadcast(ctx, "submit_cancel", o.AccountID, sequence, op)
}

// FetchOfferStatus returns the offer's remaining amount, or
// domain.ErrOfferNotFound when the ledger no longer has it.
func (c *Client) FetchOfferStatus(ctx context.Context, accountID string, offerID int64) (*domain.OfferStatus, error) {
	endpoint := c.pool.ActiveEndpoint().Address
	path := "/accounts/" + accountID + "/offers/" + strconv.FormatInt(offerID, 10)

	var resp offerResponse
	if err := c.getJSON(ctx, endpoint, path, &resp); err != nil {
		return nil, err
	}

	remaining, err := decimal.NewFromString(resp.Amount)
	if err != nil {
		return nil, domain.NewFatalNetworkError("fetch_offer", endpoint,
			fmt.Errorf("malformed amount %q: %w", resp.Amount, err))
	}

	return &domain.OfferStatus{OfferID: resp.ID, Remaining: remaining}, nil
}

// Probe is the cheap liveness call used by the endpoint pool's health
// monitor. The bool is the remote verdict; an error means the probe
// itself failed locally.
func (c *Client) Probe(ctx context.Context, address string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address+"/", nil)
	if err != nil {
		return false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Unreachable endpoint: a remote verdict, not a local failure.
		return false, nil
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode < http.StatusInternalServerError, nil
}

// broadcast signs the envelope and posts it to /transactions.
func (c *Client) broadcast(ctx context.Context, op, accountID string, sequence int64, txOp txOperation) (*domain.SubmitResult, error) {
	endpoint := c.pool.ActiveEndpoint().Address

	signer, err := c.signing.Signer()
	if err != nil {
		return nil, err
	}

	envelope := txEnvelope{
		AccountID: accountID,
		Sequence:  sequence,
		Fee:       c.baseFee,
		Network:   c.passphrase,
		Operation: txOp,
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("envelope marshal: %w", err)
	}

	reqBody := submitRequest{
		Envelope:  envelope,
		Signature: signer.Sign(payload),
		PublicKey: signer.PublicKey(),
	}

	body, status, err := c.doRequest(ctx, endpoint, http.MethodPost, "/transactions", reqBody)
	if err != nil {
		return nil, domain.NewNetworkError(op, endpoint, err)
	}

	var resp submitResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewNetworkError(op, endpoint, fmt.Errorf("parse response: %w", err))
	}

	if status != http.StatusOK {
		if resp.Code == "tx_bad_seq" {
			return nil, &domain.SequenceConflictError{
				AccountID: accountID,
				Err:       fmt.Errorf("%s: %s", resp.Code, resp.Detail),
			}
		}
		if status >= http.StatusInternalServerError {
			return nil, domain.NewNetworkError(op, endpoint,
				fmt.Errorf("status=%d code=%s", status, resp.Code))
		}
		return nil, domain.NewFatalNetworkError(op, endpoint,
			fmt.Errorf("status=%d code=%s detail=%s", status, resp.Code, resp.Detail))
	}

	c.logger.Info("Transaction accepted", "op", op, "hash", resp.Hash, "offer_id", resp.OfferID)
	return &domain.SubmitResult{SettlementRef: resp.Hash, OfferID: resp.OfferID}, nil
}

// getJSON performs a GET against one endpoint, mapping 404 to
// ErrOfferNotFound and transport problems to NetworkError.
func (c *Client) getJSON(ctx context.Context, endpoint, path string, out any) error {
	body, status, err := c.doRequest(ctx, endpoint, http.MethodGet, path, nil)
	if err != nil {
		return domain.NewNetworkError("get "+path, endpoint, err)
	}

	switch {
	case status == http.StatusNotFound:
		return domain.ErrOfferNotFound
	case status >= http.StatusInternalServerError:
		return domain.NewNetworkError("get "+path, endpoint, fmt.Errorf("status=%d", status))
	case status != http.StatusOK:
		return domain.NewFatalNetworkError("get "+path, endpoint, fmt.Errorf("status=%d", status))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return domain.NewNetworkError("get "+path, endpoint, fmt.Errorf("parse response: %w", err))
	}
	return nil
}

// doRequest handles serialization and rate limiting.
func (c *Client) doRequest(ctx context.Context, endpoint, method, path string, body any) ([]byte, int, error) {
	if c.limiter != nil {
		c.limiter.Wait()
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		bodyReader = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint+path, bodyReader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return respBody, resp.StatusCode, nil
}
