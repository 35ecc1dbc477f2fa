package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tg-adescrow/backend/internal/models"
)

// ErrConcurrentModification is returned when a compare-and-set update
// matches no row: the deal moved to another status since it was read.
var ErrConcurrentModification = errors.New("deal was modified concurrently")

type DealRepo struct {
	pool *pgxpool.Pool
}

func NewDealRepo(pool *pgxpool.Pool) *DealRepo {
	return &DealRepo{pool: pool}
}

const dealColumns = `id, campaign_id, channel_id, status, escrow_amount, advertiser_wallet,
       channel_owner_wallet, message_id, posted_at, hold_hours, created_at, updated_at`

func (r *DealRepo) Create(ctx context.Context, d *models.Deal) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO deals (campaign_id, channel_id, status, escrow_amount, advertiser_wallet, channel_owner_wallet, hold_hours)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, d.CampaignID, d.ChannelID, d.Status, d.EscrowAmount, d.AdvertiserWallet, d.ChannelOwnerWallet, d.HoldHours,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
}

func (r *DealRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	var d models.Deal
	err := r.pool.QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = $1`, id).
		Scan(&d.ID, &d.CampaignID, &d.ChannelID, &d.Status, &d.EscrowAmount, &d.AdvertiserWallet,
			&d.ChannelOwnerWallet, &d.MessageID, &d.PostedAt, &d.HoldHours, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DealRepo) GetByIDWithChannel(ctx context.Context, id uuid.UUID) (*models.DealWithChannel, error) {
	var d models.DealWithChannel
	err := r.pool.QueryRow(ctx, `
		SELECT d.id, d.campaign_id, d.channel_id, d.status, d.escrow_amount, d.advertiser_wallet,
		       d.channel_owner_wallet, d.message_id, d.posted_at, d.hold_hours, d.created_at, d.updated_at,
		       c.username, c.name, cam.title
		FROM deals d
		JOIN channels c ON c.id = d.channel_id
		LEFT JOIN campaigns cam ON cam.id = d.campaign_id
		WHERE d.id = $1
	`, id).Scan(&d.ID, &d.CampaignID, &d.ChannelID, &d.Status, &d.EscrowAmount, &d.AdvertiserWallet,
		&d.ChannelOwnerWallet, &d.MessageID, &d.PostedAt, &d.HoldHours, &d.CreatedAt, &d.UpdatedAt,
		&d.ChannelHandle, &d.ChannelName, &d.CampaignTitle)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

type DealFilter struct {
	ChannelID    *uuid.UUID
	CampaignID   *uuid.UUID
	AdvertiserID *uuid.UUID // through campaigns
	Status       *string
	Limit        int
	Offset       int
}

func (r *DealRepo) List(ctx context.Context, f DealFilter) ([]models.DealWithChannel, error) {
	query := `
		SELECT d.id, d.campaign_id, d.channel_id, d.status, d.escrow_amount, d.advertiser_wallet,
		       d.channel_owner_wallet, d.message_id, d.posted_at, d.hold_hours, d.created_at, d.updated_at,
		       c.username, c.name, cam.title
		FROM deals d
		JOIN channels c ON c.id = d.channel_id
		LEFT JOIN campaigns cam ON cam.id = d.campaign_id
	`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.ChannelID != nil {
		where = append(where, fmt.Sprintf("d.channel_id = $%d", argIdx))
		args = append(args, *f.ChannelID)
		argIdx++
	}
	if f.CampaignID != nil {
		where = append(where, fmt.Sprintf("d.campaign_id = $%d", argIdx))
		args = append(args, *f.CampaignID)
		argIdx++
	}
	if f.AdvertiserID != nil {
		where = append(where, fmt.Sprintf("cam.advertiser_id = $%d", argIdx))
		args = append(args, *f.AdvertiserID)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("d.status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}

	if len(where) > 0 {
		query += " WHERE "
		for i, w := range where {
			if i > 0 {
				query += " AND "
			}
			query += w
		}
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY d.created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []models.DealWithChannel
	for rows.Next() {
		var d models.DealWithChannel
		if err := rows.Scan(&d.ID, &d.CampaignID, &d.ChannelID, &d.Status, &d.EscrowAmount, &d.AdvertiserWallet,
			&d.ChannelOwnerWallet, &d.MessageID, &d.PostedAt, &d.HoldHours, &d.CreatedAt, &d.UpdatedAt,
			&d.ChannelHandle, &d.ChannelName, &d.CampaignTitle); err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, nil
}

// TransitionStatus performs the compare-and-set status update. A zero row
// count means the deal was not in `from` anymore.
func (r *DealRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from, to string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE deals SET status = $1, updated_at = now() WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// TransitionStatusFrom is the multi-source variant used by escrow settlement:
// the update succeeds if the deal is currently in any of fromStates.
func (r *DealRepo) TransitionStatusFrom(ctx context.Context, id uuid.UUID, fromStates []string, to string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE deals SET status = $1, updated_at = now() WHERE id = $2 AND status = ANY($3)
	`, to, id, fromStates)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func (r *DealRepo) SetAdvertiserWallet(ctx context.Context, id uuid.UUID, wallet string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE deals SET advertiser_wallet = $1, updated_at = now() WHERE id = $2
	`, wallet, id)
	return err
}

func (r *DealRepo) SetPosted(ctx context.Context, id uuid.UUID, messageID int64, postedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE deals SET message_id = $1, posted_at = $2, updated_at = now() WHERE id = $3
	`, messageID, postedAt, id)
	return err
}

// Parties resolves the notification targets of a deal: the campaign's
// advertiser and the channel owner, by telegram id.
func (r *DealRepo) Parties(ctx context.Context, id uuid.UUID) (*models.DealParties, error) {
	var p models.DealParties
	err := r.pool.QueryRow(ctx, `
		SELECT d.id, adv.telegram_user_id, own.telegram_user_id, c.username, d.escrow_amount, d.hold_hours
		FROM deals d
		JOIN channels c ON c.id = d.channel_id
		LEFT JOIN campaigns cam ON cam.id = d.campaign_id
		LEFT JOIN users adv ON adv.id = cam.advertiser_id
		LEFT JOIN users own ON own.id = c.owner_user_id
		WHERE d.id = $1
	`, id).Scan(&p.DealID, &p.AdvertiserTelegramID, &p.OwnerTelegramID, &p.ChannelHandle, &p.EscrowAmount, &p.HoldHours)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
