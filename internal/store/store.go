package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/errs"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store. driver is "postgres" (lib/pq) or "pgx".
func NewStore(driver, databaseURL string) (*Store, error) {
	db, err := sqlx.Connect(driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Migrate creates the schema if it does not exist yet
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type businessRow struct {
	ID             string          `db:"id"`
	Name           string          `db:"name"`
	IsOpen         bool            `db:"is_open"`
	Lat            float64         `db:"lat"`
	Lng            float64         `db:"lng"`
	TaxRatePercent decimal.Decimal `db:"tax_rate_percent"`
	ServiceFee     decimal.Decimal `db:"service_fee"`
	Delivery       []byte          `db:"delivery"`
}

type menuItemRow struct {
	ID        string          `db:"id"`
	Name      string          `db:"name"`
	Price     decimal.Decimal `db:"price"`
	Available bool            `db:"available"`
	Modifiers []byte          `db:"modifiers"`
}

// Business loads the catalog snapshot of a business
func (s *Store) Business(ctx context.Context, id string) (*models.Business, error) {
	var row businessRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, name, is_open, lat, lng, tax_rate_percent, service_fee, delivery
		FROM businesses WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound(errs.CodeBusinessNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load business %s: %w", id, err)
	}

	biz := &models.Business{
		ID:             row.ID,
		Name:           row.Name,
		IsOpen:         row.IsOpen,
		Lat:            row.Lat,
		Lng:            row.Lng,
		TaxRatePercent: row.TaxRatePercent,
		ServiceFee:     row.ServiceFee,
		Menu:           make(map[string]models.MenuItem),
	}
	if err := json.Unmarshal(row.Delivery, &biz.Delivery); err != nil {
		return nil, fmt.Errorf("failed to decode delivery config of %s: %w", id, err)
	}

	var items []menuItemRow
	err = s.db.SelectContext(ctx, &items,
		"SELECT id, name, price, available, modifiers FROM menu_items WHERE business_id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("failed to load menu of %s: %w", id, err)
	}

	for _, it := range items {
		item := models.MenuItem{ID: it.ID, Name: it.Name, Price: it.Price, Available: it.Available}
		if len(it.Modifiers) > 0 {
			if err := json.Unmarshal(it.Modifiers, &item.Modifiers); err != nil {
				return nil, fmt.Errorf("failed to decode modifiers of %s/%s: %w", id, it.ID, err)
			}
		}
		biz.Menu[it.ID] = item
	}
	return biz, nil
}

// SaveBusiness replaces the catalog snapshot of a business
func (s *Store) SaveBusiness(ctx context.Context, biz *models.Business) error {
	delivery, err := json.Marshal(biz.Delivery)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO businesses (id, name, is_open, lat, lng, tax_rate_percent, service_fee, delivery, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, is_open = EXCLUDED.is_open, lat = EXCLUDED.lat, lng = EXCLUDED.lng,
			tax_rate_percent = EXCLUDED.tax_rate_percent, service_fee = EXCLUDED.service_fee,
			delivery = EXCLUDED.delivery, updated_at = NOW()`,
		biz.ID, biz.Name, biz.IsOpen, biz.Lat, biz.Lng, biz.TaxRatePercent, biz.ServiceFee, string(delivery))
	if err != nil {
		return fmt.Errorf("failed to save business %s: %w", biz.ID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM menu_items WHERE business_id = $1", biz.ID); err != nil {
		return err
	}
	for id, item := range biz.Menu {
		mods, err := json.Marshal(item.Modifiers)
		if err != nil {
			return err
		}
		if item.Modifiers == nil {
			mods = []byte("{}")
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO menu_items (business_id, id, name, price, available, modifiers) VALUES ($1, $2, $3, $4, $5, $6)",
			biz.ID, id, item.Name, item.Price, item.Available, string(mods))
		if err != nil {
			return fmt.Errorf("failed to save menu item %s: %w", id, err)
		}
	}

	return tx.Commit()
}
