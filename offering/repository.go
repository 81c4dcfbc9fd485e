package offering

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"agenthire/usdc"
)

var (
	// ErrNotFound is returned when no offering row exists for the identifier.
	ErrNotFound = errors.New("offering: not found")
	// ErrDuplicateSlug signals the slug is already taken.
	ErrDuplicateSlug = errors.New("offering: slug already exists")
	// ErrImmutable signals an attempt to change price or schemas after jobs
	// reference the offering.
	ErrImmutable = errors.New("offering: price and schemas frozen by existing jobs")
)

const offeringColumns = `
	id, slug, seller_agent_id, seller_wallet, title, category, price_usdc,
	max_latency_ms, input_schema, output_schema, status,
	total_jobs, completed_jobs, rating_count, avg_rating, avg_latency_ms,
	created_at, updated_at
`

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func scanOffering(row pgx.Row) (Offering, error) {
	var o Offering
	var price int64
	if err := row.Scan(
		&o.ID, &o.Slug, &o.SellerAgentID, &o.SellerWallet, &o.Title, &o.Category, &price,
		&o.MaxLatencyMs, &o.InputSchema, &o.OutputSchema, &o.Status,
		&o.TotalJobs, &o.CompletedJobs, &o.RatingCount, &o.AvgRating, &o.AvgLatencyMs,
		&o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return Offering{}, err
	}
	o.PriceUsdc = usdc.Amount(price)
	return o, nil
}

func (r *PGRepository) Create(ctx context.Context, params CreateParams) (Offering, error) {
	insertSQL := `
		INSERT INTO offerings (slug, seller_agent_id, seller_wallet, title, category,
		                       price_usdc, max_latency_ms, input_schema, output_schema, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'active')
		RETURNING ` + offeringColumns

	o, err := scanOffering(r.pool.QueryRow(ctx, insertSQL,
		params.Slug,
		params.SellerAgentID,
		params.SellerWallet,
		params.Title,
		params.Category,
		int64(params.PriceUsdc),
		params.MaxLatencyMs,
		params.InputSchema,
		params.OutputSchema,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Offering{}, ErrDuplicateSlug
		}
		return Offering{}, fmt.Errorf("offering: create: %w", err)
	}
	return o, nil
}

func (r *PGRepository) GetBySlug(ctx context.Context, slug string) (Offering, error) {
	query := `SELECT ` + offeringColumns + ` FROM offerings WHERE slug = $1`
	o, err := scanOffering(r.pool.QueryRow(ctx, query, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Offering{}, ErrNotFound
		}
		return Offering{}, fmt.Errorf("offering: get by slug: %w", err)
	}
	return o, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Offering, error) {
	query := `SELECT ` + offeringColumns + ` FROM offerings WHERE id = $1`
	o, err := scanOffering(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Offering{}, ErrNotFound
		}
		return Offering{}, fmt.Errorf("offering: get by id: %w", err)
	}
	return o, nil
}

// Discover lists active offerings matching the filters.
func (r *PGRepository) Discover(ctx context.Context, f DiscoverFilters) ([]Offering, int, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 || f.PageSize > 100 {
		f.PageSize = 20
	}

	where := `WHERE status = 'active'`
	args := []any{}
	n := 0
	next := func() string { n++; return fmt.Sprintf("$%d", n) }

	if f.Category != "" {
		where += ` AND category = ` + next()
		args = append(args, f.Category)
	}
	if f.MaxPriceUsdc > 0 {
		where += ` AND price_usdc <= ` + next()
		args = append(args, int64(f.MaxPriceUsdc))
	}
	if f.Keyword != "" {
		p := next()
		where += fmt.Sprintf(` AND (slug ILIKE %s OR title ILIKE %s)`, p, p)
		args = append(args, "%"+f.Keyword+"%")
	}

	order := `ORDER BY created_at DESC`
	switch f.Sort {
	case SortPrice:
		order = `ORDER BY price_usdc ASC`
	case SortRating:
		order = `ORDER BY avg_rating DESC, rating_count DESC`
	case SortLatency:
		order = `ORDER BY avg_latency_ms ASC NULLS LAST`
	}

	query := `SELECT ` + offeringColumns + ` FROM offerings ` + where + ` ` + order +
		fmt.Sprintf(` LIMIT %s OFFSET %s`, next(), next())
	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("offering: discover: %w", err)
	}
	defer rows.Close()

	out := make([]Offering, 0, f.PageSize)
	for rows.Next() {
		o, err := scanOffering(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("offering: scan: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("offering: iterate: %w", err)
	}

	countQuery := `SELECT COUNT(*) FROM offerings ` + where
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args[:len(args)-2]...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("offering: count: %w", err)
	}

	return out, total, nil
}

// Retire flips an offering to retired. Jobs already referencing it keep their
// copied price and seller wallet.
func (r *PGRepository) Retire(ctx context.Context, id, sellerAgentID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE offerings SET status = 'retired', updated_at = now()
		WHERE id = $1 AND seller_agent_id = $2 AND status = 'active'
	`, id, sellerAgentID)
	if err != nil {
		return fmt.Errorf("offering: retire: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePricing changes price and schemas only while no job references the
// offering: an in-flight payment amount must never be invalidated.
func (r *PGRepository) UpdatePricing(ctx context.Context, id string, price usdc.Amount, inputSchema, outputSchema []byte) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE offerings
		SET price_usdc = $2,
		    input_schema = $3,
		    output_schema = $4,
		    updated_at = now()
		WHERE id = $1
		  AND NOT EXISTS (SELECT 1 FROM jobs WHERE offering_id = $1)
	`, id, int64(price), inputSchema, outputSchema)
	if err != nil {
		return fmt.Errorf("offering: update pricing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM offerings WHERE id=$1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("offering: update pricing check: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrImmutable
	}
	return nil
}

// RecordSettlement folds one executor outcome into the denormalized counters.
func (r *PGRepository) RecordSettlement(ctx context.Context, id string, completed bool, latencyMs int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE offerings
		SET total_jobs = total_jobs + 1,
		    completed_jobs = completed_jobs + CASE WHEN $2 THEN 1 ELSE 0 END,
		    avg_latency_ms = CASE WHEN $2
		        THEN (avg_latency_ms * completed_jobs + $3) / (completed_jobs + 1)
		        ELSE avg_latency_ms END,
		    updated_at = now()
		WHERE id = $1
	`, id, completed, float64(latencyMs))
	if err != nil {
		return fmt.Errorf("offering: record settlement: %w", err)
	}
	return nil
}

// RecordRating folds one buyer rating into the running average.
func (r *PGRepository) RecordRating(ctx context.Context, id string, rating int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE offerings
		SET avg_rating = (avg_rating * rating_count + $2) / (rating_count + 1),
		    rating_count = rating_count + 1,
		    updated_at = now()
		WHERE id = $1
	`, id, rating)
	if err != nil {
		return fmt.Errorf("offering: record rating: %w", err)
	}
	return nil
}
