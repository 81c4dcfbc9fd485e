package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"agenthire/usdc"
)

// Receipt is the immutable audit record of a verified on-chain transfer. Rows
// are insert-only and persist independently of job outcome.
type Receipt struct {
	ID         string
	Payer      string
	Payee      string
	Amount     usdc.Amount
	Signature  string
	Endpoint   string
	TxHash     *string
	VerifiedAt time.Time
}

// ReceiptStore is implemented by ReceiptRepository and by fakes in tests.
type ReceiptStore interface {
	Insert(ctx context.Context, r Receipt) (Receipt, error)
}

type ReceiptRepository struct {
	pool *pgxpool.Pool
}

func NewReceiptRepository(pool *pgxpool.Pool) *ReceiptRepository {
	return &ReceiptRepository{pool: pool}
}

func (r *ReceiptRepository) Insert(ctx context.Context, rec Receipt) (Receipt, error) {
	const insertSQL = `
		INSERT INTO payment_receipts (payer, payee, amount_usdc, signature, endpoint, tx_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, verified_at
	`

	var txHash any
	if rec.TxHash != nil && *rec.TxHash != "" {
		txHash = *rec.TxHash
	}

	if err := r.pool.QueryRow(ctx, insertSQL,
		rec.Payer,
		rec.Payee,
		int64(rec.Amount),
		rec.Signature,
		rec.Endpoint,
		txHash,
	).Scan(&rec.ID, &rec.VerifiedAt); err != nil {
		return Receipt{}, fmt.Errorf("payment: insert receipt: %w", err)
	}

	return rec, nil
}

// ListByPayer returns receipts for audit review, newest first.
func (r *ReceiptRepository) ListByPayer(ctx context.Context, payer string, limit int) ([]Receipt, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	const query = `
		SELECT id, payer, payee, amount_usdc, signature, endpoint, tx_hash, verified_at
		FROM payment_receipts
		WHERE payer = $1
		ORDER BY verified_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, payer, limit)
	if err != nil {
		return nil, fmt.Errorf("payment: list receipts: %w", err)
	}
	defer rows.Close()

	out := make([]Receipt, 0, 8)
	for rows.Next() {
		var rec Receipt
		var amount int64
		if err := rows.Scan(&rec.ID, &rec.Payer, &rec.Payee, &amount, &rec.Signature, &rec.Endpoint, &rec.TxHash, &rec.VerifiedAt); err != nil {
			return nil, fmt.Errorf("payment: scan receipt: %w", err)
		}
		rec.Amount = usdc.Amount(amount)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("payment: iterate receipts: %w", err)
	}
	return out, nil
}
