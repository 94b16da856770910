package broadcast

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/broadcast-engine/internal/model"
	apperrors "github.com/jwalitptl/broadcast-engine/pkg/errors"
	"github.com/jwalitptl/broadcast-engine/pkg/logger"
)

type fakeBroadcastRepo struct {
	broadcasts map[uuid.UUID]*model.Broadcast
	statuses   map[uuid.UUID]model.BroadcastStatus
}

func newFakeBroadcastRepo(broadcasts ...*model.Broadcast) *fakeBroadcastRepo {
	m := make(map[uuid.UUID]*model.Broadcast, len(broadcasts))
	for _, b := range broadcasts {
		m[b.ID] = b
	}
	return &fakeBroadcastRepo{broadcasts: m, statuses: make(map[uuid.UUID]model.BroadcastStatus)}
}

func (f *fakeBroadcastRepo) Create(ctx context.Context, b *model.Broadcast) error {
	b.ID = uuid.New()
	b.Status = model.BroadcastStatusDraft
	b.Stats = model.BroadcastStats{Total: len(b.Recipients)}
	f.broadcasts[b.ID] = b
	return nil
}

func (f *fakeBroadcastRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Broadcast, error) {
	b, ok := f.broadcasts[id]
	if !ok {
		return nil, apperrors.NotFound("broadcast", nil)
	}
	return b, nil
}

func (f *fakeBroadcastRepo) GetStatus(ctx context.Context, id uuid.UUID) (model.BroadcastStatus, error) {
	b, err := f.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return b.Status, nil
}

func (f *fakeBroadcastRepo) List(ctx context.Context, tenantID uuid.UUID, status *model.BroadcastStatus, limit, offset int) ([]*model.Broadcast, error) {
	var out []*model.Broadcast
	for _, b := range f.broadcasts {
		if b.TenantID == tenantID && (status == nil || b.Status == *status) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBroadcastRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.BroadcastStatus) error {
	b, err := f.GetByID(ctx, id)
	if err != nil {
		return err
	}
	b.Status = status
	f.statuses[id] = status
	return nil
}

func (f *fakeBroadcastRepo) FinishRun(ctx context.Context, id uuid.UUID, status model.BroadcastStatus, stats model.BroadcastStats) error {
	b, err := f.GetByID(ctx, id)
	if err != nil {
		return err
	}
	b.Status = status
	b.Stats = stats
	return nil
}

type fakeConnectionRepo struct {
	conns map[uuid.UUID]*model.Connection
}

func newFakeConnectionRepo(conns ...*model.Connection) *fakeConnectionRepo {
	m := make(map[uuid.UUID]*model.Connection, len(conns))
	for _, c := range conns {
		m[c.ID] = c
	}
	return &fakeConnectionRepo{conns: m}
}

func (f *fakeConnectionRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Connection, error) {
	c, ok := f.conns[id]
	if !ok {
		return nil, apperrors.NotFound("connection", nil)
	}
	return c, nil
}

func (f *fakeConnectionRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*model.Connection, error) {
	var out []*model.Connection
	for _, c := range f.conns {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakePublisher struct {
	channels []string
	payloads []interface{}
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) error {
	f.channels = append(f.channels, channel)
	f.payloads = append(f.payloads, message)
	return nil
}

func (f *fakePublisher) lastJob(t *testing.T) model.DispatchJob {
	t.Helper()
	require.NotEmpty(t, f.payloads)
	raw, err := json.Marshal(f.payloads[len(f.payloads)-1])
	require.NoError(t, err)
	var job model.DispatchJob
	require.NoError(t, json.Unmarshal(raw, &job))
	return job
}

const testQueue = "broadcast_dispatch"

func newTestService(broadcasts *fakeBroadcastRepo, connections *fakeConnectionRepo, queue *fakePublisher) *Service {
	return NewService(
		broadcasts,
		connections,
		queue,
		testQueue,
		Defaults{DelayMs: 1000, Jitter: 0.1},
		logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard}),
	)
}

func activeConnection(tenantID uuid.UUID, channel model.Channel) *model.Connection {
	return &model.Connection{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Channel:    channel,
		ExternalID: "123456789",
		Status:     model.ConnectionStatusActive,
	}
}

func TestCreateBroadcast(t *testing.T) {
	tenantID := uuid.New()
	conn := activeConnection(tenantID, model.ChannelWhatsApp)
	repo := newFakeBroadcastRepo()
	svc := newTestService(repo, newFakeConnectionRepo(conn), &fakePublisher{})

	b, err := svc.CreateBroadcast(context.Background(), tenantID, &model.CreateBroadcastRequest{
		ConnectionID: conn.ID.String(),
		Channel:      model.ChannelWhatsApp,
		Message:      "spring sale starts now",
		Recipients:   []string{"+5511999990001", "+5511999990002"},
		DelayMs:      2000,
		Jitter:       0.25,
	})

	require.NoError(t, err)
	assert.Equal(t, model.BroadcastStatusDraft, b.Status)
	assert.Equal(t, tenantID, b.TenantID)
	assert.Equal(t, 2000, b.DelayMs)
	assert.Equal(t, 0.25, b.Jitter)
	assert.Equal(t, 2, b.Stats.Total)
	assert.Equal(t, 0, b.Stats.Attempted())
}

func TestCreateBroadcastAppliesDefaults(t *testing.T) {
	tenantID := uuid.New()
	conn := activeConnection(tenantID, model.ChannelFacebook)
	svc := newTestService(newFakeBroadcastRepo(), newFakeConnectionRepo(conn), &fakePublisher{})

	b, err := svc.CreateBroadcast(context.Background(), tenantID, &model.CreateBroadcastRequest{
		ConnectionID: conn.ID.String(),
		Channel:      model.ChannelFacebook,
		Message:      "hello",
		Recipients:   []string{"psid-1"},
	})

	require.NoError(t, err)
	assert.Equal(t, 1000, b.DelayMs)
	assert.Equal(t, 0.1, b.Jitter)
}

func TestCreateBroadcastRejectsForeignConnection(t *testing.T) {
	conn := activeConnection(uuid.New(), model.ChannelWhatsApp)
	svc := newTestService(newFakeBroadcastRepo(), newFakeConnectionRepo(conn), &fakePublisher{})

	_, err := svc.CreateBroadcast(context.Background(), uuid.New(), &model.CreateBroadcastRequest{
		ConnectionID: conn.ID.String(),
		Channel:      model.ChannelWhatsApp,
		Message:      "hello",
		Recipients:   []string{"+5511999990001"},
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNotFound, apperrors.Code(err))
}

func TestCreateBroadcastRejectsDisabledConnection(t *testing.T) {
	tenantID := uuid.New()
	conn := activeConnection(tenantID, model.ChannelWhatsApp)
	conn.Status = model.ConnectionStatusDisabled
	svc := newTestService(newFakeBroadcastRepo(), newFakeConnectionRepo(conn), &fakePublisher{})

	_, err := svc.CreateBroadcast(context.Background(), tenantID, &model.CreateBroadcastRequest{
		ConnectionID: conn.ID.String(),
		Channel:      model.ChannelWhatsApp,
		Message:      "hello",
		Recipients:   []string{"+5511999990001"},
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrConflict, apperrors.Code(err))
}

func TestCreateBroadcastRejectsChannelMismatch(t *testing.T) {
	tenantID := uuid.New()
	conn := activeConnection(tenantID, model.ChannelWhatsApp)
	svc := newTestService(newFakeBroadcastRepo(), newFakeConnectionRepo(conn), &fakePublisher{})

	_, err := svc.CreateBroadcast(context.Background(), tenantID, &model.CreateBroadcastRequest{
		ConnectionID: conn.ID.String(),
		Channel:      model.ChannelInstagram,
		Message:      "hello",
		Recipients:   []string{"igsid-1"},
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.Code(err))
}

func TestGetBroadcastScopedToTenant(t *testing.T) {
	tenantID := uuid.New()
	b := &model.Broadcast{ID: uuid.New(), TenantID: tenantID, Status: model.BroadcastStatusDraft}
	svc := newTestService(newFakeBroadcastRepo(b), newFakeConnectionRepo(), &fakePublisher{})

	got, err := svc.GetBroadcast(context.Background(), tenantID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	// Another tenant's record is indistinguishable from a missing one.
	_, err = svc.GetBroadcast(context.Background(), uuid.New(), b.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNotFound, apperrors.Code(err))
}

func TestStartBroadcastEnqueuesDispatchJob(t *testing.T) {
	tenantID := uuid.New()
	mediaURL := "https://cdn.example.com/promo.jpg"
	b := &model.Broadcast{
		ID:           uuid.New(),
		TenantID:     tenantID,
		ConnectionID: uuid.New(),
		Channel:      model.ChannelWhatsApp,
		Message:      "spring sale",
		MediaURL:     &mediaURL,
		Recipients:   []string{"+5511999990001", "+5511999990002"},
		DelayMs:      1500,
		Jitter:       0.2,
		Status:       model.BroadcastStatusDraft,
		Stats:        model.BroadcastStats{Total: 2},
	}
	queue := &fakePublisher{}
	svc := newTestService(newFakeBroadcastRepo(b), newFakeConnectionRepo(), queue)

	require.NoError(t, svc.StartBroadcast(context.Background(), tenantID, b.ID))

	require.Len(t, queue.channels, 1)
	assert.Equal(t, testQueue, queue.channels[0])

	job := queue.lastJob(t)
	assert.Equal(t, b.ID, job.BroadcastID)
	assert.Equal(t, b.ConnectionID, job.ConnectionID)
	assert.Equal(t, []string{"+5511999990001", "+5511999990002"}, job.Recipients)
	assert.Equal(t, "spring sale", job.Message)
	assert.Equal(t, mediaURL, job.MediaURL)
	assert.Equal(t, 1500, job.DelayMs)
	assert.Equal(t, 0.2, job.Jitter)

	// Enqueue does not flip the status; the worker does that when it
	// picks the job up.
	assert.Equal(t, model.BroadcastStatusDraft, b.Status)
}

func TestStartBroadcastOnlyFromDraft(t *testing.T) {
	for _, status := range []model.BroadcastStatus{
		model.BroadcastStatusRunning,
		model.BroadcastStatusPaused,
		model.BroadcastStatusDone,
		model.BroadcastStatusFailed,
	} {
		t.Run(string(status), func(t *testing.T) {
			tenantID := uuid.New()
			b := &model.Broadcast{ID: uuid.New(), TenantID: tenantID, Status: status}
			queue := &fakePublisher{}
			svc := newTestService(newFakeBroadcastRepo(b), newFakeConnectionRepo(), queue)

			err := svc.StartBroadcast(context.Background(), tenantID, b.ID)
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrConflict, apperrors.Code(err))
			assert.Empty(t, queue.channels)
		})
	}
}

func TestPauseBroadcast(t *testing.T) {
	tenantID := uuid.New()
	b := &model.Broadcast{ID: uuid.New(), TenantID: tenantID, Status: model.BroadcastStatusRunning}
	repo := newFakeBroadcastRepo(b)
	svc := newTestService(repo, newFakeConnectionRepo(), &fakePublisher{})

	require.NoError(t, svc.PauseBroadcast(context.Background(), tenantID, b.ID))
	assert.Equal(t, model.BroadcastStatusPaused, repo.statuses[b.ID])
}

func TestPauseBroadcastRejectsDraft(t *testing.T) {
	tenantID := uuid.New()
	b := &model.Broadcast{ID: uuid.New(), TenantID: tenantID, Status: model.BroadcastStatusDraft}
	svc := newTestService(newFakeBroadcastRepo(b), newFakeConnectionRepo(), &fakePublisher{})

	err := svc.PauseBroadcast(context.Background(), tenantID, b.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrConflict, apperrors.Code(err))
}

func TestResumeBroadcastReEnqueues(t *testing.T) {
	tenantID := uuid.New()
	b := &model.Broadcast{
		ID:           uuid.New(),
		TenantID:     tenantID,
		ConnectionID: uuid.New(),
		Recipients:   []string{"a", "b", "c"},
		Status:       model.BroadcastStatusPaused,
		Stats:        model.BroadcastStats{Sent: 1, Total: 3},
	}
	queue := &fakePublisher{}
	svc := newTestService(newFakeBroadcastRepo(b), newFakeConnectionRepo(), queue)

	require.NoError(t, svc.ResumeBroadcast(context.Background(), tenantID, b.ID))

	job := queue.lastJob(t)
	assert.Equal(t, b.ID, job.BroadcastID)
	// The full list travels with the job; the runner skips the
	// recipients already attempted.
	assert.Equal(t, []string{"a", "b", "c"}, job.Recipients)
}

func TestResumeBroadcastWithNothingLeftClosesOut(t *testing.T) {
	tenantID := uuid.New()
	b := &model.Broadcast{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Recipients: []string{"a", "b"},
		Status:     model.BroadcastStatusPaused,
		Stats:      model.BroadcastStats{Sent: 1, Failed: 1, Total: 2},
	}
	queue := &fakePublisher{}
	repo := newFakeBroadcastRepo(b)
	svc := newTestService(repo, newFakeConnectionRepo(), queue)

	require.NoError(t, svc.ResumeBroadcast(context.Background(), tenantID, b.ID))

	assert.Empty(t, queue.channels)
	assert.Equal(t, model.BroadcastStatusDone, repo.statuses[b.ID])
}

func TestResumeBroadcastOnlyFromPaused(t *testing.T) {
	tenantID := uuid.New()
	b := &model.Broadcast{ID: uuid.New(), TenantID: tenantID, Status: model.BroadcastStatusRunning}
	svc := newTestService(newFakeBroadcastRepo(b), newFakeConnectionRepo(), &fakePublisher{})

	err := svc.ResumeBroadcast(context.Background(), tenantID, b.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrConflict, apperrors.Code(err))
}
