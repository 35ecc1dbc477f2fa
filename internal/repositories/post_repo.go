package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tg-adescrow/backend/internal/models"
)

type PostRepo struct {
	pool *pgxpool.Pool
}

func NewPostRepo(pool *pgxpool.Pool) *PostRepo {
	return &PostRepo{pool: pool}
}

func (r *PostRepo) Create(ctx context.Context, p *models.ScheduledPost) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO scheduled_posts (deal_id, channel_id, ad_text, scheduled_time, hold_hours, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, p.DealID, p.ChannelID, p.AdText, p.ScheduledTime, p.HoldHours, p.Status).Scan(&p.ID, &p.CreatedAt)
}

func (r *PostRepo) GetByDealID(ctx context.Context, dealID uuid.UUID) (*models.ScheduledPost, error) {
	var p models.ScheduledPost
	err := r.pool.QueryRow(ctx, `
		SELECT id, deal_id, channel_id, ad_text, scheduled_time, posted_at, message_id,
		       hold_hours, release_at, status, last_verified_at, created_at
		FROM scheduled_posts WHERE deal_id = $1
	`, dealID).Scan(&p.ID, &p.DealID, &p.ChannelID, &p.AdText, &p.ScheduledTime, &p.PostedAt, &p.MessageID,
		&p.HoldHours, &p.ReleaseAt, &p.Status, &p.LastVerifiedAt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Due returns scheduled posts whose time has come, joined with the channel
// columns the worker needs to send.
func (r *PostRepo) Due(ctx context.Context, now time.Time) ([]models.WorkPost, error) {
	return r.queryWork(ctx, `
		SELECT p.id, p.deal_id, p.channel_id, p.ad_text, p.scheduled_time, p.posted_at, p.message_id,
		       p.hold_hours, p.release_at, p.status, p.last_verified_at, p.created_at,
		       c.telegram_chat_id, c.username
		FROM scheduled_posts p
		JOIN channels c ON c.id = p.channel_id
		WHERE p.status = 'scheduled' AND p.scheduled_time <= $1
		ORDER BY p.scheduled_time
	`, now)
}

// Live returns posted posts that still need existence verification.
func (r *PostRepo) Live(ctx context.Context) ([]models.WorkPost, error) {
	return r.queryWork(ctx, `
		SELECT p.id, p.deal_id, p.channel_id, p.ad_text, p.scheduled_time, p.posted_at, p.message_id,
		       p.hold_hours, p.release_at, p.status, p.last_verified_at, p.created_at,
		       c.telegram_chat_id, c.username
		FROM scheduled_posts p
		JOIN channels c ON c.id = p.channel_id
		WHERE p.status = 'posted' AND p.message_id IS NOT NULL
		ORDER BY p.posted_at
	`)
}

func (r *PostRepo) queryWork(ctx context.Context, query string, args ...any) ([]models.WorkPost, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []models.WorkPost
	for rows.Next() {
		var p models.WorkPost
		if err := rows.Scan(&p.ID, &p.DealID, &p.ChannelID, &p.AdText, &p.ScheduledTime, &p.PostedAt, &p.MessageID,
			&p.HoldHours, &p.ReleaseAt, &p.Status, &p.LastVerifiedAt, &p.CreatedAt,
			&p.ChannelChatID, &p.ChannelHandle); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, nil
}

// MarkPosted records a successful send. release_at is derived from postedAt
// and hold_hours so the release boundary is fixed at posting time.
func (r *PostRepo) MarkPosted(ctx context.Context, id uuid.UUID, messageID int64, postedAt, releaseAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE scheduled_posts SET
			status = 'posted', message_id = $1, posted_at = $2, release_at = $3, last_verified_at = $2
		WHERE id = $4
	`, messageID, postedAt, releaseAt, id)
	return err
}

func (r *PostRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, `UPDATE scheduled_posts SET status = $1 WHERE id = $2`, status, id)
	return err
}

// UpdateStatusByDealID advances the deal's sent post after a settlement
// that bypassed the worker. Rows that never went live stay untouched.
func (r *PostRepo) UpdateStatusByDealID(ctx context.Context, dealID uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE scheduled_posts SET status = $1 WHERE deal_id = $2 AND status = 'posted'
	`, status, dealID)
	return err
}

func (r *PostRepo) Touch(ctx context.Context, id uuid.UUID, verifiedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE scheduled_posts SET last_verified_at = $1 WHERE id = $2`, verifiedAt, id)
	return err
}

// DeleteByDealID removes a not-yet-posted row when scheduling is cancelled.
func (r *PostRepo) DeleteByDealID(ctx context.Context, dealID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM scheduled_posts WHERE deal_id = $1 AND status = 'scheduled'`, dealID)
	return err
}
