package service

import (
	"sort"
	"strings"
	"sync"

	"ledger_go/internal/domain"
)

// AssetService holds the whitelist of tradable instruments. Orders in
// unlisted assets are rejected before they ever reach the ledger.
type AssetService struct {
	mu        sync.RWMutex
	supported map[string]domain.Asset
}

// NewAssetService builds the whitelist from config entries. Each entry
// is "CODE" for the native asset or "CODE:ISSUER" for issued assets.
func NewAssetService(entries []string) *AssetService {
	s := &AssetService{
		supported: make(map[string]domain.Asset, len(entries)),
	}
	for _, entry := range entries {
		asset := parseEntry(entry)
		if asset.Code == "" {
			continue
		}
		s.supported[asset.String()] = asset
	}
	return s
}

// IsSupported reports whether the asset may be traded.
func (s *AssetService) IsSupported(asset domain.Asset) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.supported[asset.String()]
	return ok
}

// Add whitelists an asset at runtime.
func (s *AssetService) Add(asset domain.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.supported[asset.String()] = asset
}

// Remove drops an asset from the whitelist. Open orders in the asset
// are unaffected; only new placements are blocked.
func (s *AssetService) Remove(asset domain.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.supported, asset.String())
}

// List returns the whitelist sorted by asset string.
func (s *AssetService) List() []domain.Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Asset, 0, len(s.supported))
	for _, a := range s.supported {
		result = append(result, a)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].String() < result[j].String()
	})

	return result
}

func parseEntry(entry string) domain.Asset {
	entry = strings.TrimSpace(entry)
	code, issuer, found := strings.Cut(entry, ":")
	if !found {
		return domain.Asset{Code: code}
	}
	return domain.Asset{Code: code, Issuer: issuer}
}
