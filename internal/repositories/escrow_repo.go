package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/tg-adescrow/backend/internal/models"
)

type EscrowRepo struct {
	pool *pgxpool.Pool
}

func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

// CreateWallet inserts the per-deal wallet. UNIQUE(deal_id) guards against a
// second wallet for the same deal; callers are expected to look up first.
func (r *EscrowRepo) CreateWallet(ctx context.Context, w *models.EscrowWallet) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO escrow_wallets (deal_id, address, encrypted_mnemonic, wallet_version)
		VALUES ($1, $2, $3, $4)
		RETURNING id, balance, created_at
	`, w.DealID, w.Address, w.EncryptedMnemonic, w.WalletVersion).Scan(&w.ID, &w.Balance, &w.CreatedAt)
}

func (r *EscrowRepo) GetWalletByDealID(ctx context.Context, dealID uuid.UUID) (*models.EscrowWallet, error) {
	var w models.EscrowWallet
	err := r.pool.QueryRow(ctx, `
		SELECT id, deal_id, address, encrypted_mnemonic, wallet_version, balance, last_checked_at, created_at
		FROM escrow_wallets WHERE deal_id = $1
	`, dealID).Scan(&w.ID, &w.DealID, &w.Address, &w.EncryptedMnemonic, &w.WalletVersion,
		&w.Balance, &w.LastCheckedAt, &w.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *EscrowRepo) UpdateBalance(ctx context.Context, dealID uuid.UUID, balance decimal.Decimal, checkedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE escrow_wallets SET balance = $1, last_checked_at = $2 WHERE deal_id = $3
	`, balance, checkedAt, dealID)
	return err
}

// InsertTransaction appends a value-movement record. UNIQUE(tx_hash) makes
// repeated inserts of the same chain transaction a no-op; the returned bool
// reports whether a new row was written.
func (r *EscrowRepo) InsertTransaction(ctx context.Context, tx *models.EscrowTransaction) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO escrow_transactions (wallet_id, deal_id, tx_hash, kind, amount, from_addr, to_addr, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tx_hash) DO NOTHING
	`, tx.WalletID, tx.DealID, tx.TxHash, tx.Kind, tx.Amount, tx.FromAddr, tx.ToAddr, tx.Status)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *EscrowRepo) ListTransactionsByDeal(ctx context.Context, dealID uuid.UUID) ([]models.EscrowTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, wallet_id, deal_id, tx_hash, kind, amount, from_addr, to_addr, status, created_at
		FROM escrow_transactions WHERE deal_id = $1
		ORDER BY created_at DESC
	`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []models.EscrowTransaction
	for rows.Next() {
		var t models.EscrowTransaction
		if err := rows.Scan(&t.ID, &t.WalletID, &t.DealID, &t.TxHash, &t.Kind, &t.Amount,
			&t.FromAddr, &t.ToAddr, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, nil
}
