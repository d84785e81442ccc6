package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/SamMebarek/mlopstest/internal/api"
	"github.com/SamMebarek/mlopstest/internal/features"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Querier is the subset of pgxpool.Pool used by PostgresSource
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource reads observations from a table.
//
// Schema:
//
//	CREATE TABLE observations (
//	  sku              TEXT NOT NULL,
//	  ts               TIMESTAMPTZ NOT NULL,
//	  initial_price    DOUBLE PRECISION NOT NULL,
//	  age_in_days      DOUBLE PRECISION NOT NULL,
//	  quantity_sold    DOUBLE PRECISION NOT NULL,
//	  utility_score    DOUBLE PRECISION NOT NULL,
//	  price_elasticity DOUBLE PRECISION NOT NULL,
//	  discount         DOUBLE PRECISION NOT NULL,
//	  quality          DOUBLE PRECISION NOT NULL,
//	  price            DOUBLE PRECISION
//	);
//	CREATE INDEX idx_observations_sku_ts ON observations(sku, ts DESC);
type PostgresSource struct {
	db     Querier
	query  string
	logger zerolog.Logger
}

// NewPostgresSource creates a source reading from table through db
func NewPostgresSource(db Querier, table string, logger zerolog.Logger) *PostgresSource {
	return &PostgresSource{
		db:     db,
		query:  selectObservations(table),
		logger: logger.With().Str("component", "postgres_source").Logger(),
	}
}

// Connect opens a pgx pool and checks connectivity
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return pool, nil
}

func selectObservations(table string) string {
	return `SELECT sku, ts, initial_price, age_in_days, quantity_sold, utility_score,
		price_elasticity, discount, quality, price
		FROM ` + pgx.Identifier{table}.Sanitize()
}

// Load implements inference.DataSource
func (s *PostgresSource) Load(ctx context.Context) (features.History, error) {
	rows, err := s.db.Query(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("postgres query failed: %w: %w", err, api.ErrDataUnavailable)
	}
	defer rows.Close()

	var h features.History
	for rows.Next() {
		var (
			o     features.Observation
			price *float64
		)
		if err := rows.Scan(&o.SKU, &o.Timestamp,
			&o.InitialPrice, &o.AgeInDays, &o.QuantitySold, &o.UtilityScore,
			&o.PriceElasticity, &o.Discount, &o.Quality, &price); err != nil {
			return nil, fmt.Errorf("postgres scan failed: %w: %w", err, api.ErrDataUnavailable)
		}
		if price != nil {
			o.Price, o.HasPrice = *price, true
		}
		h = append(h, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres rows failed: %w: %w", err, api.ErrDataUnavailable)
	}

	s.logger.Debug().Int("rows", len(h)).Msg("loaded observations")
	return h, nil
}
