package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tg-adescrow/backend/internal/models"
)

type ChannelRepo struct {
	pool *pgxpool.Pool
}

func NewChannelRepo(pool *pgxpool.Pool) *ChannelRepo {
	return &ChannelRepo{pool: pool}
}

const channelColumns = `id, telegram_chat_id, username, name, category, price_ton, subscribers,
       verified, bot_is_admin, bot_can_post, owner_user_id, owner_ton_wallet, created_at, updated_at`

func (r *ChannelRepo) scanChannel(row interface{ Scan(...any) error }) (*models.Channel, error) {
	var c models.Channel
	err := row.Scan(&c.ID, &c.TelegramChatID, &c.Username, &c.Name, &c.Category, &c.PriceTON, &c.Subscribers,
		&c.Verified, &c.BotIsAdmin, &c.BotCanPost, &c.OwnerUserID, &c.OwnerTONWallet, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ChannelRepo) Create(ctx context.Context, c *models.Channel) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO channels (telegram_chat_id, username, name, category, price_ton, owner_user_id, owner_ton_wallet)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, c.TelegramChatID, c.Username, c.Name, c.Category, c.PriceTON, c.OwnerUserID, c.OwnerTONWallet,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (r *ChannelRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Channel, error) {
	return r.scanChannel(r.pool.QueryRow(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE id = $1`, id))
}

func (r *ChannelRepo) GetByUsername(ctx context.Context, username string) (*models.Channel, error) {
	return r.scanChannel(r.pool.QueryRow(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE username = $1`, username))
}

type ChannelFilter struct {
	Category *string
	Verified *bool
	Limit    int
	Offset   int
}

func (r *ChannelRepo) List(ctx context.Context, f ChannelFilter) ([]models.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.Category != nil {
		where = append(where, fmt.Sprintf("category = $%d", argIdx))
		args = append(args, *f.Category)
		argIdx++
	}
	if f.Verified != nil {
		where = append(where, fmt.Sprintf("verified = $%d", argIdx))
		args = append(args, *f.Verified)
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
		limit = 50
	}
	query += fmt.Sprintf(" ORDER BY subscribers DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []models.Channel
	for rows.Next() {
		c, err := r.scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, *c)
	}
	return channels, nil
}

// UpdateVerification stores the result of a platform check against the channel.
func (r *ChannelRepo) UpdateVerification(ctx context.Context, id uuid.UUID, chatID *int64, name *string, subscribers int, botIsAdmin, botCanPost bool) error {
	verified := botIsAdmin && botCanPost
	_, err := r.pool.Exec(ctx, `
		UPDATE channels SET
			telegram_chat_id = COALESCE($1, telegram_chat_id),
			name = COALESCE($2, name),
			subscribers = $3,
			bot_is_admin = $4,
			bot_can_post = $5,
			verified = $6,
			updated_at = now()
		WHERE id = $7
	`, chatID, name, subscribers, botIsAdmin, botCanPost, verified, id)
	return err
}

func (r *ChannelRepo) SetOwnerWallet(ctx context.Context, id uuid.UUID, wallet string) error {
	_, err := r.pool.Exec(ctx, `UPDATE channels SET owner_ton_wallet = $1, updated_at = now() WHERE id = $2`, wallet, id)
	return err
}

// ---- Channel admins ----

func (r *ChannelRepo) GetAdmin(ctx context.Context, channelID, userID uuid.UUID) (*models.ChannelAdmin, error) {
	var a models.ChannelAdmin
	err := r.pool.QueryRow(ctx, `
		SELECT id, channel_id, user_id, role, last_verified_at
		FROM channel_admins WHERE channel_id = $1 AND user_id = $2
	`, channelID, userID).Scan(&a.ID, &a.ChannelID, &a.UserID, &a.Role, &a.LastVerifiedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *ChannelRepo) UpsertAdmin(ctx context.Context, channelID, userID uuid.UUID, role string, verifiedAt time.Time) (*models.ChannelAdmin, error) {
	var a models.ChannelAdmin
	err := r.pool.QueryRow(ctx, `
		INSERT INTO channel_admins (channel_id, user_id, role, last_verified_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (channel_id, user_id) DO UPDATE SET
			role = EXCLUDED.role,
			last_verified_at = EXCLUDED.last_verified_at
		RETURNING id, channel_id, user_id, role, last_verified_at
	`, channelID, userID, role, verifiedAt).Scan(&a.ID, &a.ChannelID, &a.UserID, &a.Role, &a.LastVerifiedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *ChannelRepo) ListAdmins(ctx context.Context, channelID uuid.UUID) ([]models.ChannelAdmin, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, channel_id, user_id, role, last_verified_at
		FROM channel_admins WHERE channel_id = $1
	`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var admins []models.ChannelAdmin
	for rows.Next() {
		var a models.ChannelAdmin
		if err := rows.Scan(&a.ID, &a.ChannelID, &a.UserID, &a.Role, &a.LastVerifiedAt); err != nil {
			return nil, err
		}
		admins = append(admins, a)
	}
	return admins, nil
}

func (r *ChannelRepo) DeleteAdmin(ctx context.Context, channelID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM channel_admins WHERE channel_id = $1 AND user_id = $2`, channelID, userID)
	return err
}
