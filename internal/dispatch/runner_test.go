package dispatch

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/broadcast-engine/internal/model"
	"github.com/jwalitptl/broadcast-engine/internal/sender"
	apperrors "github.com/jwalitptl/broadcast-engine/pkg/errors"
	"github.com/jwalitptl/broadcast-engine/pkg/logger"
	"github.com/jwalitptl/broadcast-engine/pkg/metrics"
)

//
// Test fakes – only for this file.
//

type finishCall struct {
	status model.BroadcastStatus
	stats  model.BroadcastStats
}

type fakeBroadcastRepo struct {
	broadcast *model.Broadcast
	getErr    error

	// statuses scripts successive GetStatus responses; the last entry
	// repeats once exhausted. Empty means always RUNNING.
	statuses    []model.BroadcastStatus
	statusCalls int
	statusErr   error
	statusErrAt int // 1-based GetStatus call index that fails; 0 = never

	updates []model.BroadcastStatus
	finish  *finishCall
}

func (r *fakeBroadcastRepo) Create(ctx context.Context, b *model.Broadcast) error { return nil }

func (r *fakeBroadcastRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Broadcast, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.broadcast, nil
}

func (r *fakeBroadcastRepo) GetStatus(ctx context.Context, id uuid.UUID) (model.BroadcastStatus, error) {
	r.statusCalls++
	if r.statusErrAt > 0 && r.statusCalls == r.statusErrAt {
		return "", r.statusErr
	}
	if len(r.statuses) == 0 {
		return model.BroadcastStatusRunning, nil
	}
	idx := r.statusCalls - 1
	if idx >= len(r.statuses) {
		idx = len(r.statuses) - 1
	}
	return r.statuses[idx], nil
}

func (r *fakeBroadcastRepo) List(ctx context.Context, tenantID uuid.UUID, status *model.BroadcastStatus, limit, offset int) ([]*model.Broadcast, error) {
	return nil, nil
}

func (r *fakeBroadcastRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.BroadcastStatus) error {
	r.updates = append(r.updates, status)
	return nil
}

func (r *fakeBroadcastRepo) FinishRun(ctx context.Context, id uuid.UUID, status model.BroadcastStatus, stats model.BroadcastStats) error {
	r.finish = &finishCall{status: status, stats: stats}
	return nil
}

type fakeSender struct {
	calls   []string
	failFor map[string]bool
}

func (s *fakeSender) Send(ctx context.Context, recipient string, msg sender.Message) (*sender.Result, error) {
	s.calls = append(s.calls, recipient)
	if s.failFor[recipient] {
		return nil, &sender.SendError{Reason: "recipient blocked"}
	}
	return &sender.Result{MessageID: "mid-" + recipient}, nil
}

type fakeResolver struct {
	snd sender.Sender
	err error
}

func (r *fakeResolver) ForConnection(ctx context.Context, connectionID uuid.UUID) (sender.Sender, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.snd, nil
}

func newTestBroadcast(recipients []string) *model.Broadcast {
	return &model.Broadcast{
		ID:           uuid.New(),
		TenantID:     uuid.New(),
		ConnectionID: uuid.New(),
		Channel:      model.ChannelWhatsApp,
		Message:      "hello",
		Recipients:   recipients,
		Status:       model.BroadcastStatusDraft,
		Stats:        model.BroadcastStats{Total: len(recipients)},
	}
}

func newTestJob(b *model.Broadcast, delayMs int, jitter float64) model.DispatchJob {
	return model.DispatchJob{
		BroadcastID:  b.ID,
		ConnectionID: b.ConnectionID,
		Recipients:   b.Recipients,
		Message:      b.Message,
		DelayMs:      delayMs,
		Jitter:       jitter,
	}
}

func newTestRunner(t *testing.T, repo *fakeBroadcastRepo, resolver *fakeResolver) (*Runner, *[]time.Duration) {
	t.Helper()

	r := NewRunner(
		repo,
		resolver,
		logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard}),
		metrics.NewMetricsWith(prometheus.NewRegistry(), "test", "dispatch"),
	)

	sleeps := &[]time.Duration{}
	r.sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return r, sleeps
}

//
// Tests
//

func TestRunnerSendsInListOrder(t *testing.T) {
	b := newTestBroadcast([]string{"a", "b", "c"})
	repo := &fakeBroadcastRepo{broadcast: b}
	snd := &fakeSender{}
	r, sleeps := newTestRunner(t, repo, &fakeResolver{snd: snd})

	err := r.Run(context.Background(), newTestJob(b, 100, 0))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, snd.calls)
	assert.Equal(t, []model.BroadcastStatus{model.BroadcastStatusRunning}, repo.updates)

	require.NotNil(t, repo.finish)
	assert.Equal(t, model.BroadcastStatusDone, repo.finish.status)
	assert.Equal(t, model.BroadcastStats{Sent: 3, Failed: 0, Total: 3}, repo.finish.stats)

	// Pacing applies between sends only, never after the last one.
	assert.Len(t, *sleeps, 2)
}

func TestRunnerFailureIsolation(t *testing.T) {
	b := newTestBroadcast([]string{"a", "b", "c"})
	repo := &fakeBroadcastRepo{broadcast: b}
	snd := &fakeSender{failFor: map[string]bool{"b": true}}
	r, _ := newTestRunner(t, repo, &fakeResolver{snd: snd})

	err := r.Run(context.Background(), newTestJob(b, 0, 0))
	require.NoError(t, err)

	// The failure on b does not stop the attempt on c.
	assert.Equal(t, []string{"a", "b", "c"}, snd.calls)

	require.NotNil(t, repo.finish)
	assert.Equal(t, model.BroadcastStatusDone, repo.finish.status)
	assert.Equal(t, model.BroadcastStats{Sent: 2, Failed: 1, Total: 3}, repo.finish.stats)
}

func TestRunnerPacingWindow(t *testing.T) {
	b := newTestBroadcast([]string{"+5511999990001", "+5511999990002"})
	repo := &fakeBroadcastRepo{broadcast: b}
	snd := &fakeSender{}
	r, sleeps := newTestRunner(t, repo, &fakeResolver{snd: snd})

	err := r.Run(context.Background(), newTestJob(b, 1000, 0.1))
	require.NoError(t, err)

	require.NotNil(t, repo.finish)
	assert.Equal(t, model.BroadcastStatusDone, repo.finish.status)
	assert.Equal(t, model.BroadcastStats{Sent: 2, Failed: 0, Total: 2}, repo.finish.stats)

	require.Len(t, *sleeps, 1)
	assert.GreaterOrEqual(t, (*sleeps)[0], 900*time.Millisecond)
	assert.LessOrEqual(t, (*sleeps)[0], 1100*time.Millisecond)
}

func TestRunnerZeroJitterSleepsExactly(t *testing.T) {
	b := newTestBroadcast([]string{"a", "b", "c"})
	repo := &fakeBroadcastRepo{broadcast: b}
	r, sleeps := newTestRunner(t, repo, &fakeResolver{snd: &fakeSender{}})

	err := r.Run(context.Background(), newTestJob(b, 500, 0))
	require.NoError(t, err)

	require.Len(t, *sleeps, 2)
	for _, d := range *sleeps {
		assert.Equal(t, 500*time.Millisecond, d)
	}
}

func TestRunnerPauseStopsBetweenSends(t *testing.T) {
	b := newTestBroadcast([]string{"a", "b"})
	repo := &fakeBroadcastRepo{
		broadcast: b,
		// First poll lets the first send through, second poll
		// observes the pause request.
		statuses: []model.BroadcastStatus{
			model.BroadcastStatusRunning,
			model.BroadcastStatusPaused,
		},
	}
	snd := &fakeSender{}
	r, _ := newTestRunner(t, repo, &fakeResolver{snd: snd})

	err := r.Run(context.Background(), newTestJob(b, 0, 0))
	require.NoError(t, err)

	// The second recipient is never attempted.
	assert.Equal(t, []string{"a"}, snd.calls)

	require.NotNil(t, repo.finish)
	assert.Equal(t, model.BroadcastStatusPaused, repo.finish.status)
	assert.Equal(t, model.BroadcastStats{Sent: 1, Failed: 0, Total: 2}, repo.finish.stats)
	assert.LessOrEqual(t, repo.finish.stats.Attempted(), repo.finish.stats.Total)
}

func TestRunnerResumeSkipsAttemptedRecipients(t *testing.T) {
	b := newTestBroadcast([]string{"a", "b", "c", "d"})
	b.Status = model.BroadcastStatusPaused
	b.Stats = model.BroadcastStats{Sent: 1, Failed: 1, Total: 4}

	repo := &fakeBroadcastRepo{broadcast: b}
	snd := &fakeSender{}
	r, _ := newTestRunner(t, repo, &fakeResolver{snd: snd})

	err := r.Run(context.Background(), newTestJob(b, 0, 0))
	require.NoError(t, err)

	// sent+failed from the paused run is the resume offset.
	assert.Equal(t, []string{"c", "d"}, snd.calls)

	require.NotNil(t, repo.finish)
	assert.Equal(t, model.BroadcastStatusDone, repo.finish.status)
	assert.Equal(t, model.BroadcastStats{Sent: 3, Failed: 1, Total: 4}, repo.finish.stats)
}

func TestRunnerMissingBroadcastAbortsRun(t *testing.T) {
	repo := &fakeBroadcastRepo{getErr: apperrors.NotFound("broadcast", nil)}
	snd := &fakeSender{}
	r, _ := newTestRunner(t, repo, &fakeResolver{snd: snd})

	job := model.DispatchJob{BroadcastID: uuid.New(), ConnectionID: uuid.New(), Recipients: []string{"a"}}
	err := r.Run(context.Background(), job)

	require.Error(t, err)
	assert.Empty(t, snd.calls)
	assert.Nil(t, repo.finish)
}

func TestRunnerStatusLookupFailureMidRunAborts(t *testing.T) {
	b := newTestBroadcast([]string{"a", "b", "c"})
	repo := &fakeBroadcastRepo{
		broadcast:   b,
		statusErr:   errors.New("record deleted"),
		statusErrAt: 2,
	}
	snd := &fakeSender{}
	r, _ := newTestRunner(t, repo, &fakeResolver{snd: snd})

	err := r.Run(context.Background(), newTestJob(b, 0, 0))

	require.Error(t, err)
	assert.Equal(t, []string{"a"}, snd.calls)
	// No final write: the record may be gone.
	assert.Nil(t, repo.finish)
}

func TestRunnerSetupFailureMarksFailed(t *testing.T) {
	b := newTestBroadcast([]string{"a", "b"})
	repo := &fakeBroadcastRepo{broadcast: b}
	resolver := &fakeResolver{err: apperrors.NotFound("connection", nil)}
	r, _ := newTestRunner(t, repo, resolver)

	err := r.Run(context.Background(), newTestJob(b, 0, 0))

	require.Error(t, err)
	require.NotNil(t, repo.finish)
	assert.Equal(t, model.BroadcastStatusFailed, repo.finish.status)
	assert.Equal(t, model.BroadcastStats{Sent: 0, Failed: 0, Total: 2}, repo.finish.stats)
}

func TestRunnerSkipsTerminalBroadcast(t *testing.T) {
	b := newTestBroadcast([]string{"a"})
	b.Status = model.BroadcastStatusDone

	repo := &fakeBroadcastRepo{broadcast: b}
	snd := &fakeSender{}
	r, _ := newTestRunner(t, repo, &fakeResolver{snd: snd})

	err := r.Run(context.Background(), newTestJob(b, 0, 0))

	require.NoError(t, err)
	assert.Empty(t, snd.calls)
	assert.Nil(t, repo.finish)
}

func TestRunnerShutdownPersistsPausedState(t *testing.T) {
	b := newTestBroadcast([]string{"a", "b", "c"})
	repo := &fakeBroadcastRepo{broadcast: b}
	snd := &fakeSender{}
	r, _ := newTestRunner(t, repo, &fakeResolver{snd: snd})

	r.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	err := r.Run(context.Background(), newTestJob(b, 100, 0))
	require.NoError(t, err)

	// One attempt, then the interrupted sleep ends the run resumably.
	assert.Equal(t, []string{"a"}, snd.calls)
	require.NotNil(t, repo.finish)
	assert.Equal(t, model.BroadcastStatusPaused, repo.finish.status)
	assert.Equal(t, model.BroadcastStats{Sent: 1, Failed: 0, Total: 3}, repo.finish.stats)
}

func TestRunnerEmptyRecipientListFinishesImmediately(t *testing.T) {
	b := newTestBroadcast(nil)
	repo := &fakeBroadcastRepo{broadcast: b}
	snd := &fakeSender{}
	r, sleeps := newTestRunner(t, repo, &fakeResolver{snd: snd})

	err := r.Run(context.Background(), newTestJob(b, 1000, 0.5))
	require.NoError(t, err)

	assert.Empty(t, snd.calls)
	assert.Empty(t, *sleeps)
	require.NotNil(t, repo.finish)
	assert.Equal(t, model.BroadcastStatusDone, repo.finish.status)
	assert.Equal(t, model.BroadcastStats{Sent: 0, Failed: 0, Total: 0}, repo.finish.stats)
}
