package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"ledger_go/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OrderRecord is the persisted snapshot of one order. Decimal values
// are stored as strings to keep exact fill accounting across restarts.
type OrderRecord struct {
	ID            string `gorm:"primaryKey"`
	AccountID     string `gorm:"index"`
	SellingAsset  string
	BuyingAsset   string
	Amount        string
	Price         string
	Filled        string
	Remaining     string
	Status        string `gorm:"index"`
	SettlementRef string
	OfferID       int64 `gorm:"index"`
	CorrelationID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderEventRecord is one append-only history entry.
type OrderEventRecord struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	OrderID       string `gorm:"index"`
	Event         string
	Status        string
	Detail        string
	CorrelationID string
	Ts            time.Time
}

// Storage persists order snapshots and history to SQLite
type Storage struct {
	db *gorm.DB
}

// NewStorage creates a new SQLite storage instance. An empty path
// resolves to the OS config directory.
func NewStorage(dbPath string) (*Storage, error) {
	if dbPath == "" {
		var err error
		dbPath, err = getDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
	}

	// Ensure directory exists
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto Migration
	if err := db.AutoMigrate(&OrderRecord{}, &OrderEventRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "LedgerTrader", "data", "orders.db"), nil
}

// SaveOrder upserts the order snapshot and appends any history events
// not yet persisted.
func (s *Storage) SaveOrder(o *domain.Order) error {
	rec := toRecord(o)
	if err := s.db.Save(&rec).Error; err != nil {
		return err
	}

	var stored int64
	if err := s.db.Model(&OrderEventRecord{}).Where("order_id = ?", o.ID).Count(&stored).Error; err != nil {
		return err
	}
	if int(stored) >= len(o.History) {
		return nil
	}

	for _, ev := range o.History[stored:] {
		rec := OrderEventRecord{
			OrderID:       o.ID,
			Event:         ev.Event,
			Status:        ev.Status,
			Detail:        ev.Detail,
			CorrelationID: ev.CorrelationID,
			Ts:            ev.Ts,
		}
		if err := s.db.Create(&rec).Error; err != nil {
			return err
		}
	}
	return nil
}

// GetOrder retrieves one order with its history
func (s *Storage) GetOrder(orderID string) (*domain.Order, error) {
	var rec OrderRecord
	err := s.db.First(&rec, "id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, err
	}

	o, err := fromRecord(&rec)
	if err != nil {
		return nil, err
	}

	var events []OrderEventRecord
	if err := s.db.Where("order_id = ?", orderID).Order("id").Find(&events).Error; err != nil {
		return nil, err
	}
	for _, ev := range events {
		o.History = append(o.History, domain.HistoryEvent{
			Event:         ev.Event,
			Status:        ev.Status,
			Detail:        ev.Detail,
			CorrelationID: ev.CorrelationID,
			Ts:            ev.Ts,
		})
	}

	return o, nil
}

// LoadOpenOrders returns all persisted non-terminal orders for startup
// recovery.
func (s *Storage) LoadOpenOrders() ([]*domain.Order, error) {
	var recs []OrderRecord
	err := s.db.Where("status IN ?", []string{
		domain.OrderStatusOpen,
		domain.OrderStatusPartiallyFilled,
	}).Find(&recs).Error
	if err != nil {
		return nil, err
	}

	orders := make([]*domain.Order, 0, len(recs))
	for i := range recs {
		o, err := fromRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// CountByStatus reports how many persisted orders carry each status.
func (s *Storage) CountByStatus() (map[string]int64, error) {
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := s.db.Model(&OrderRecord{}).
		Select("status, count(*) as n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make(map[string]int64, len(rows))
	for _, r := range rows {
		result[r.Status] = r.N
	}
	return result, nil
}

func toRecord(o *domain.Order) OrderRecord {
	return OrderRecord{
		ID:            o.ID,
		AccountID:     o.AccountID,
		SellingAsset:  o.Selling.String(),
		BuyingAsset:   o.Buying.String(),
		Amount:        o.Amount.String(),
		Price:         o.Price.String(),
		Filled:        o.Filled.String(),
		Remaining:     o.Remaining.String(),
		Status:        o.Status,
		SettlementRef: o.SettlementRef,
		OfferID:       o.OfferID,
		CorrelationID: o.CorrelationID,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func fromRecord(rec *OrderRecord) (*domain.Order, error) {
	amount, err := decimal.NewFromString(rec.Amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount for %s: %w", rec.ID, err)
	}
	price, err := decimal.NewFromString(rec.Price)
	if err != nil {
		return nil, fmt.Errorf("corrupt price for %s: %w", rec.ID, err)
	}
	filled, err := decimal.NewFromString(rec.Filled)
	if err != nil {
		return nil, fmt.Errorf("corrupt filled for %s: %w", rec.ID, err)
	}
	remaining, err := decimal.NewFromString(rec.Remaining)
	if err != nil {
		return nil, fmt.Errorf("corrupt remaining for %s: %w", rec.ID, err)
	}

	return &domain.Order{
		ID:            rec.ID,
		AccountID:     rec.AccountID,
		Selling:       parseAsset(rec.SellingAsset),
		Buying:        parseAsset(rec.BuyingAsset),
		Amount:        amount,
		Price:         price,
		Filled:        filled,
		Remaining:     remaining,
		Status:        rec.Status,
		SettlementRef: rec.SettlementRef,
		OfferID:       rec.OfferID,
		CorrelationID: rec.CorrelationID,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}, nil
}

func parseAsset(s string) domain.Asset {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return domain.Asset{Code: s[:i], Issuer: s[i+1:]}
		}
	}
	return domain.Asset{Code: s}
}
