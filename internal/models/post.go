package models

import (
	"time"

	"github.com/google/uuid"
)

// Scheduled post statuses: scheduled -> posted -> released | refunded.
const (
	PostStatusScheduled = "scheduled"
	PostStatusPosted    = "posted"
	PostStatusReleased  = "released"
	PostStatusRefunded  = "refunded"
)

type ScheduledPost struct {
	ID             uuid.UUID  `json:"id"`
	DealID         uuid.UUID  `json:"deal_id"`
	ChannelID      uuid.UUID  `json:"channel_id"`
	AdText         string     `json:"ad_text"`
	ScheduledTime  time.Time  `json:"scheduled_time"`
	PostedAt       *time.Time `json:"posted_at,omitempty"`
	MessageID      *int64     `json:"message_id,omitempty"`
	HoldHours      int        `json:"hold_hours"`
	ReleaseAt      *time.Time `json:"release_at,omitempty"`
	Status         string     `json:"status"`
	LastVerifiedAt *time.Time `json:"last_verified,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// WorkPost embeds ScheduledPost and joins the channel columns the worker
// needs, so a tick runs one query per batch instead of one per post.
type WorkPost struct {
	ScheduledPost
	ChannelChatID *int64 `json:"channel_chat_id,omitempty"`
	ChannelHandle string `json:"channel_handle"`
}
