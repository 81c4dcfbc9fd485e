package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrAgentNotFound signals that the agent does not exist.
	ErrAgentNotFound = errors.New("identity: agent not found")
	// ErrDuplicateAgent signals the handle or wallet is already registered.
	ErrDuplicateAgent = errors.New("identity: handle or wallet already registered")
)

// Repository handles data access for agent identity.
type Repository interface {
	CreateAgent(ctx context.Context, params CreateAgentParams) (Agent, error)
	GetByHandle(ctx context.Context, handle string) (Agent, error)
	GetByID(ctx context.Context, id string) (Agent, error)
	ListLocalSellers(ctx context.Context) ([]Agent, error)
}

// CreateAgentParams contains write parameters for registering agents.
type CreateAgentParams struct {
	Handle        string
	DisplayName   string
	WalletAddress string
	SecretHash    string
	Role          Role
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const agentColumns = `id, handle, display_name, wallet_address, secret_hash, role, created_at, updated_at`

func scanAgent(row pgx.Row) (Agent, error) {
	var a Agent
	err := row.Scan(&a.ID, &a.Handle, &a.DisplayName, &a.WalletAddress, &a.SecretHash, &a.Role, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *PGRepository) CreateAgent(ctx context.Context, params CreateAgentParams) (Agent, error) {
	insertSQL := `
		INSERT INTO agents (handle, display_name, wallet_address, secret_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + agentColumns

	a, err := scanAgent(r.pool.QueryRow(ctx, insertSQL,
		params.Handle, params.DisplayName, params.WalletAddress, params.SecretHash, params.Role))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Agent{}, ErrDuplicateAgent
		}
		return Agent{}, fmt.Errorf("identity: create agent: %w", err)
	}
	return a, nil
}

func (r *PGRepository) GetByHandle(ctx context.Context, handle string) (Agent, error) {
	a, err := scanAgent(r.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE handle = $1`, handle))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agent{}, ErrAgentNotFound
		}
		return Agent{}, fmt.Errorf("identity: get by handle: %w", err)
	}
	return a, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Agent, error) {
	a, err := scanAgent(r.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agent{}, ErrAgentNotFound
		}
		return Agent{}, fmt.Errorf("identity: get by id: %w", err)
	}
	return a, nil
}

// ListLocalSellers returns the seller-capable agents hosted by this process.
// The executor snapshots this list at the top of every poll cycle.
func (r *PGRepository) ListLocalSellers(ctx context.Context) ([]Agent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+agentColumns+` FROM agents WHERE role IN ('seller', 'dual') ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("identity: list sellers: %w", err)
	}
	defer rows.Close()

	out := make([]Agent, 0, 8)
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("identity: scan agent: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("identity: iterate agents: %w", err)
	}
	return out, nil
}
