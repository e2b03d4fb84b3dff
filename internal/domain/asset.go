package domain

// Asset identifies one tradable instrument on the ledger.
// The native asset has an empty issuer.
type Asset struct {
	Code   string `json:"code"`
	Issuer string `json:"issuer,omitempty"`
}

// NativeAsset returns the ledger's native instrument, spelled "XLM" to
// match whitelist entries in configuration.
func NativeAsset() Asset {
	return Asset{Code: "XLM"}
}

// IsNative reports whether the asset is the ledger's native instrument.
func (a Asset) IsNative() bool {
	return a.Issuer == ""
}

// Equal compares code and issuer.
func (a Asset) Equal(other Asset) bool {
	return a.Code == other.Code && a.Issuer == other.Issuer
}

// String renders "CODE" for native and "CODE:ISSUER" otherwise.
func (a Asset) String() string {
	if a.Issuer == "" {
		return a.Code
	}
	return a.Code + ":" + a.Issuer
}
