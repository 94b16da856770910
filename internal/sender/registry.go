package sender

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/broadcast-engine/internal/model"
	"github.com/jwalitptl/broadcast-engine/internal/repository"
	apperrors "github.com/jwalitptl/broadcast-engine/pkg/errors"

	"github.com/google/uuid"
)

type RegistryConfig struct {
	GraphBaseURL string
	Timeout      time.Duration
	CacheTTL     time.Duration
}

// Registry resolves a channel connection into the matching Sender.
// Connection records are cached briefly so the worker doesn't hit the
// store for every run; credentials are read-mostly.
type Registry struct {
	connections repository.ConnectionRepository
	client      *resty.Client
	connCache   *cache.Cache
}

func NewRegistry(connections repository.ConnectionRepository, cfg RegistryConfig) *Registry {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	client := resty.New().
		SetBaseURL(cfg.GraphBaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Registry{
		connections: connections,
		client:      client,
		connCache:   cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
	}
}

// ForConnection returns a Sender bound to the given connection. An
// unknown, disabled, or unsupported connection is a setup failure for
// the whole run.
func (r *Registry) ForConnection(ctx context.Context, connectionID uuid.UUID) (Sender, error) {
	conn, err := r.lookup(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	if !conn.Active() {
		return nil, apperrors.Conflict(fmt.Sprintf("connection %s is disabled", connectionID), nil)
	}

	switch conn.Channel {
	case model.ChannelWhatsApp:
		return NewWhatsAppSender(r.client, conn), nil
	case model.ChannelFacebook:
		return NewFacebookSender(r.client, conn), nil
	case model.ChannelInstagram:
		return NewInstagramSender(r.client, conn), nil
	}
	return nil, fmt.Errorf("unsupported channel: %s", conn.Channel)
}

func (r *Registry) lookup(ctx context.Context, id uuid.UUID) (*model.Connection, error) {
	key := id.String()
	if cached, found := r.connCache.Get(key); found {
		return cached.(*model.Connection), nil
	}

	conn, err := r.connections.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.connCache.Set(key, conn, cache.DefaultExpiration)
	return conn, nil
}
