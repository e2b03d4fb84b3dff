package horizon

import "time"

const (
	maxRetries  = 10
	readTimeout = 60 * time.Second
)

// accountResponse is the gateway's account record. Sequence arrives as
// a string because ledger sequence numbers exceed JSON's safe integer
// range.
type accountResponse struct {
	AccountID      string         `json:"account_id"`
	Sequence       string         `json:"sequence"`
	SignerCount    int            `json:"signer_count"`
	DataEntryCount int            `json:"data_entry_count"`
	OpenOfferCount int            `json:"open_offer_count"`
	Balances       []balanceEntry `json:"balances"`
}

type balanceEntry struct {
	AssetCode   string `json:"asset_code"`
	AssetIssuer string `json:"asset_issuer,omitempty"`
	Balance     string `json:"balance"`
}

// txEnvelope is the pre-signature transaction payload. The exact wire
// encoding is the remote ledger's concern; the gateway signs the
// canonical JSON serialization of this structure.
type txEnvelope struct {
	AccountID string      `json:"account_id"`
	Sequence  int64       `json:"sequence"`
	Fee       int64       `json:"fee"`
	Network   string      `json:"network"`
	Operation txOperation `json:"operation"`
}

type txOperation struct {
	Type          string `json:"type"` // manage_offer
	SellingCode   string `json:"selling_code"`
	SellingIssuer string `json:"selling_issuer,omitempty"`
	BuyingCode    string `json:"buying_code"`
	BuyingIssuer  string `json:"buying_issuer,omitempty"`
	Amount        string `json:"amount"` // "0" deletes the offer
	Price         string `json:"price"`
	OfferID       int64  `json:"offer_id"` // 0 creates a new offer
}

// submitRequest wraps the signed envelope for broadcast.
type submitRequest struct {
	Envelope  txEnvelope `json:"envelope"`
	Signature string     `json:"signature"`
	PublicKey string     `json:"public_key"`
}

type submitResponse struct {
	Hash    string `json:"hash"`
	OfferID int64  `json:"offer_id"`
	Code    string `json:"code,omitempty"` // failure code, e.g. tx_bad_seq
	Detail  string `json:"detail,omitempty"`
}

type offerResponse struct {
	ID     int64  `json:"id"`
	Amount string `json:"amount"` // remaining amount
}

// offerStreamMessage is one settlement stream frame.
type offerStreamMessage struct {
	Type      string `json:"type"` // offer_update
	OfferID   int64  `json:"offer_id"`
	AccountID string `json:"account_id"`
	Remaining string `json:"remaining"`
	Deleted   bool   `json:"deleted"`
	Ts        int64  `json:"ts"`
}

type subscribeRequest struct {
	Op      string `json:"op"` // subscribe
	Channel string `json:"channel"`
	Account string `json:"account"`
}
