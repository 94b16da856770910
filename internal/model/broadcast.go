package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Channel string

const (
	ChannelWhatsApp  Channel = "WHATSAPP"
	ChannelFacebook  Channel = "FACEBOOK"
	ChannelInstagram Channel = "INSTAGRAM"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelWhatsApp, ChannelFacebook, ChannelInstagram:
		return true
	}
	return false
}

type BroadcastStatus string

const (
	BroadcastStatusDraft   BroadcastStatus = "DRAFT"
	BroadcastStatusRunning BroadcastStatus = "RUNNING"
	BroadcastStatusPaused  BroadcastStatus = "PAUSED"
	BroadcastStatusDone    BroadcastStatus = "DONE"
	BroadcastStatusFailed  BroadcastStatus = "FAILED"
)

// CanTransitionTo enforces the broadcast lifecycle: DRAFT runs once,
// RUNNING may pause or finish, PAUSED may resume or be closed out, and
// DONE/FAILED are terminal.
func (s BroadcastStatus) CanTransitionTo(next BroadcastStatus) bool {
	switch s {
	case BroadcastStatusDraft:
		return next == BroadcastStatusRunning || next == BroadcastStatusFailed
	case BroadcastStatusRunning:
		return next == BroadcastStatusPaused || next == BroadcastStatusDone || next == BroadcastStatusFailed
	case BroadcastStatusPaused:
		return next == BroadcastStatusRunning || next == BroadcastStatusDone
	}
	return false
}

func (s BroadcastStatus) Terminal() bool {
	return s == BroadcastStatusDone || s == BroadcastStatusFailed
}

// BroadcastStats is the aggregate delivery outcome for a broadcast.
// Sent+Failed never exceeds Total; the difference is the recipients
// not yet attempted (and the resume offset for a paused run).
type BroadcastStats struct {
	Sent   int `db:"sent_count" json:"sent"`
	Failed int `db:"failed_count" json:"failed"`
	Total  int `db:"total_count" json:"total"`
}

// Attempted is the number of recipients already tried.
func (s BroadcastStats) Attempted() int {
	return s.Sent + s.Failed
}

type Broadcast struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	TenantID     uuid.UUID       `db:"tenant_id" json:"tenant_id"`
	ConnectionID uuid.UUID       `db:"connection_id" json:"connection_id"`
	Channel      Channel         `db:"channel" json:"channel"`
	Message      string          `db:"message" json:"message"`
	MediaURL     *string         `db:"media_url" json:"media_url,omitempty"`
	Recipients   pq.StringArray  `db:"recipients" json:"recipients"`
	DelayMs      int             `db:"delay_ms" json:"delay_ms"`
	Jitter       float64         `db:"jitter" json:"jitter"`
	Status       BroadcastStatus `db:"status" json:"status"`
	Stats        BroadcastStats  `db:"stats" json:"stats"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	StartedAt    *time.Time      `db:"started_at" json:"started_at,omitempty"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
}

// FractionComplete mirrors the runner-side progress tracker for API
// consumers polling a broadcast record.
func (b *Broadcast) FractionComplete() float64 {
	if b.Stats.Total == 0 {
		return 0
	}
	return float64(b.Stats.Attempted()) / float64(b.Stats.Total)
}

// DispatchJob is the payload enqueued for the dispatch worker. Field
// names are part of the queue contract.
type DispatchJob struct {
	BroadcastID  uuid.UUID `json:"broadcast_id"`
	ConnectionID uuid.UUID `json:"connection_id"`
	Recipients   []string  `json:"recipients"`
	Message      string    `json:"message"`
	MediaURL     string    `json:"media_url,omitempty"`
	DelayMs      int       `json:"delay_ms"`
	Jitter       float64   `json:"jitter"`
}

type CreateBroadcastRequest struct {
	ConnectionID string   `json:"connection_id" binding:"required,uuid"`
	Channel      Channel  `json:"channel" binding:"required,oneof=WHATSAPP FACEBOOK INSTAGRAM"`
	Message      string   `json:"message" binding:"required"`
	MediaURL     *string  `json:"media_url" binding:"omitempty,url"`
	Recipients   []string `json:"recipients" binding:"required,min=1,dive,required"`
	DelayMs      int      `json:"delay_ms" binding:"omitempty,min=0"`
	Jitter       float64  `json:"jitter" binding:"omitempty,jitter"`
}
