package repository

import (
	"context"
	"fmt"
	"time"

	"aliexpress/scraper/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ResultRepository persists completed scrape runs for downstream consumers.
type ResultRepository interface {
	SaveResult(ctx context.Context, result *domain.ScrapeResult) error
	LatestResult(ctx context.Context, query string) (*domain.ScrapeResult, error)
}

type resultRepository struct {
	db *pgxpool.Pool
}

func NewResultRepository(db *pgxpool.Pool) ResultRepository {
	return &resultRepository{
		db: db,
	}
}

func (r *resultRepository) SaveResult(ctx context.Context, result *domain.ScrapeResult) error {
	query := `
	INSERT INTO scrape_results (query_slug, query, captured_at, data)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (query_slug)
	DO UPDATE SET query = $2, captured_at = $3, data = $4`
	_, err := r.db.Exec(ctx, query, domain.Slugify(result.Query), result.Query, time.Now(), result)
	if err != nil {
		return fmt.Errorf("failed to save scrape result: %w", err)
	}

	return nil
}

func (r *resultRepository) LatestResult(ctx context.Context, query string) (*domain.ScrapeResult, error) {
	var result domain.ScrapeResult
	row := r.db.QueryRow(ctx, `SELECT data FROM scrape_results WHERE query_slug = $1`, domain.Slugify(query))
	if err := row.Scan(&result); err != nil {
		return nil, fmt.Errorf("failed to load scrape result: %w", err)
	}

	return &result, nil
}
