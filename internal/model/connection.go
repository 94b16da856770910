package model

import (
	"time"

	"github.com/google/uuid"
)

type ConnectionStatus string

const (
	ConnectionStatusActive   ConnectionStatus = "ACTIVE"
	ConnectionStatusDisabled ConnectionStatus = "DISABLED"
)

// Connection is a tenant's authenticated session for one channel. The
// ExternalID is provider-specific: the WhatsApp phone-number id, the
// Facebook page id, or the Instagram account id.
type Connection struct {
	ID          uuid.UUID        `db:"id" json:"id"`
	TenantID    uuid.UUID        `db:"tenant_id" json:"tenant_id"`
	Channel     Channel          `db:"channel" json:"channel"`
	ExternalID  string           `db:"external_id" json:"external_id"`
	AccessToken string           `db:"access_token" json:"-"`
	Status      ConnectionStatus `db:"status" json:"status"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

func (c *Connection) Active() bool {
	return c.Status == ConnectionStatusActive
}
