package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/use-agent/stockroom/catalog"
	"github.com/use-agent/stockroom/fingerprint"
)

// Postgres is a Store backed by a pgx connection pool. Prices are stored
// as text so decimal.NewFromString round-trips the exact value the
// adapter produced; variants and images are jsonb.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the given DSN, bootstraps the products table if
// it does not exist, and returns the store.
func NewPostgres(ctx context.Context, dsn string, maxConns int) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing store DSN: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging store: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS products (
  brand_slug  text NOT NULL,
  external_id text NOT NULL,
  title       text NOT NULL,
  description text NOT NULL DEFAULT '',
  price       text NOT NULL,
  currency    text NOT NULL DEFAULT '',
  url         text NOT NULL,
  variants    jsonb NOT NULL DEFAULT '[]',
  images      jsonb NOT NULL DEFAULT '[]',
  fingerprint text NOT NULL,
  scraped_at  timestamptz NOT NULL,
  created_at  timestamptz NOT NULL DEFAULT now(),
  updated_at  timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (brand_slug, external_id)
)`)
	if err != nil {
		return fmt.Errorf("bootstrapping products table: %w", err)
	}
	return nil
}

func (p *Postgres) FindByNaturalKey(ctx context.Context, brandSlug, externalID string) (*catalog.Product, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT brand_slug, external_id, title, description, price, currency,
		       url, variants, images, scraped_at
		FROM products
		WHERE brand_slug = $1 AND external_id = $2`,
		brandSlug, externalID)

	prod, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return prod, err
}

func (p *Postgres) Write(ctx context.Context, prod *catalog.Product) (Decision, error) {
	fp := fingerprint.Compute(prod)

	variants, err := json.Marshal(prod.Variants)
	if err != nil {
		return 0, fmt.Errorf("encoding variants: %w", err)
	}
	images, err := json.Marshal(prod.Images)
	if err != nil {
		return 0, fmt.Errorf("encoding images: %w", err)
	}

	// One statement decides create/update/skip atomically. The DO UPDATE
	// only fires when the fingerprint changed, and xmax tells a fresh
	// insert apart from an updated row. No row coming back means the WHERE
	// clause suppressed the update: identical content.
	var inserted bool
	err = p.pool.QueryRow(ctx, `
		INSERT INTO products
			(brand_slug, external_id, title, description, price, currency,
			 url, variants, images, fingerprint, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (brand_slug, external_id) DO UPDATE SET
			title       = EXCLUDED.title,
			description = EXCLUDED.description,
			price       = EXCLUDED.price,
			currency    = EXCLUDED.currency,
			url         = EXCLUDED.url,
			variants    = EXCLUDED.variants,
			images      = EXCLUDED.images,
			fingerprint = EXCLUDED.fingerprint,
			scraped_at  = EXCLUDED.scraped_at,
			updated_at  = now()
		WHERE products.fingerprint IS DISTINCT FROM EXCLUDED.fingerprint
		RETURNING (xmax = 0)`,
		prod.BrandSlug, prod.ExternalID, prod.Title, prod.Description,
		prod.Price.String(), prod.Currency, prod.URL, variants, images,
		fp, prod.ScrapedAt,
	).Scan(&inserted)

	if errors.Is(err, pgx.ErrNoRows) {
		return DecisionSkipped, nil
	}
	if err != nil {
		return 0, fmt.Errorf("upserting %s/%s: %w", prod.BrandSlug, prod.ExternalID, err)
	}
	if inserted {
		return DecisionCreated, nil
	}
	return DecisionUpdated, nil
}

func (p *Postgres) ListByBrand(ctx context.Context, brandSlug string, limit, offset int) ([]*catalog.Product, error) {
	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}

	// NULLIF turns limit 0 into LIMIT NULL, i.e. no limit.
	rows, err := p.pool.Query(ctx, `
		SELECT brand_slug, external_id, title, description, price, currency,
		       url, variants, images, scraped_at
		FROM products
		WHERE brand_slug = $1
		ORDER BY external_id
		LIMIT NULLIF($2, 0) OFFSET $3`,
		brandSlug, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", brandSlug, err)
	}
	defer rows.Close()

	var out []*catalog.Product
	for rows.Next() {
		prod, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, prod)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing %s: %w", brandSlug, err)
	}
	return out, nil
}

func (p *Postgres) CountByBrand(ctx context.Context, brandSlug string) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM products WHERE brand_slug = $1`, brandSlug).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", brandSlug, err)
	}
	return n, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func scanProduct(row pgx.Row) (*catalog.Product, error) {
	var (
		prod     catalog.Product
		price    string
		variants []byte
		images   []byte
	)
	err := row.Scan(&prod.BrandSlug, &prod.ExternalID, &prod.Title,
		&prod.Description, &price, &prod.Currency, &prod.URL,
		&variants, &images, &prod.ScrapedAt)
	if err != nil {
		return nil, err
	}

	prod.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("decoding price %q: %w", price, err)
	}
	if err := json.Unmarshal(variants, &prod.Variants); err != nil {
		return nil, fmt.Errorf("decoding variants: %w", err)
	}
	if err := json.Unmarshal(images, &prod.Images); err != nil {
		return nil, fmt.Errorf("decoding images: %w", err)
	}
	return &prod, nil
}
