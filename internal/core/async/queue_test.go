package async

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aipe-tech/dataextract/internal/common"
	"github.com/aipe-tech/dataextract/internal/entity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// blockingRunner holds every job until released, so tests can observe the
// in-flight window deterministically.
type blockingRunner struct {
	started chan uuid.UUID
	release chan struct{}

	mu  sync.Mutex
	ran []uuid.UUID
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		started: make(chan uuid.UUID, 16),
		release: make(chan struct{}),
	}
}

func (r *blockingRunner) Run(_ context.Context, job *entity.Job, _ []byte) error {
	r.started <- job.CompanyID
	<-r.release
	r.mu.Lock()
	r.ran = append(r.ran, job.ID)
	r.mu.Unlock()
	return nil
}

func newTask(companyID uuid.UUID) Task {
	return Task{
		Job: &entity.Job{ID: uuid.New(), CompanyID: companyID, State: entity.JobStatePending},
		PDF: []byte("pdf"),
	}
}

func waitStarted(t *testing.T, r *blockingRunner) uuid.UUID {
	t.Helper()
	select {
	case id := <-r.started:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("no job started in time")
		return uuid.Nil
	}
}

func TestEnqueueRejectsSameCompanyWhileInFlight(t *testing.T) {
	runner := newBlockingRunner()
	q := NewJobQueue(runner, testLogger(), WithWorkers(2))
	defer shutdown(t, q, runner)

	companyID := uuid.New()
	require.NoError(t, q.Enqueue(context.Background(), newTask(companyID)))
	waitStarted(t, runner)

	err := q.Enqueue(context.Background(), newTask(companyID))
	assert.ErrorIs(t, err, common.ErrBusy)
}

func TestEnqueueAllowsDistinctCompaniesConcurrently(t *testing.T) {
	runner := newBlockingRunner()
	q := NewJobQueue(runner, testLogger(), WithWorkers(2))
	defer shutdown(t, q, runner)

	require.NoError(t, q.Enqueue(context.Background(), newTask(uuid.New())))
	require.NoError(t, q.Enqueue(context.Background(), newTask(uuid.New())))

	// Both run at the same time on separate workers.
	waitStarted(t, runner)
	waitStarted(t, runner)
}

func TestEnqueueAdmitsSameCompanyAfterCompletion(t *testing.T) {
	runner := newBlockingRunner()
	q := NewJobQueue(runner, testLogger(), WithWorkers(1))

	companyID := uuid.New()
	require.NoError(t, q.Enqueue(context.Background(), newTask(companyID)))
	waitStarted(t, runner)
	close(runner.release)

	// The first job releases the company once it finishes; poll until the
	// slot frees up.
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := q.Enqueue(context.Background(), newTask(companyID))
		if err == nil {
			break
		}
		require.ErrorIs(t, err, common.ErrBusy)
		if time.Now().After(deadline) {
			t.Fatal("company slot never freed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	waitStarted(t, runner)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	q.Shutdown(ctx)
}

func TestEnqueueAfterShutdownIsRejected(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)
	q := NewJobQueue(runner, testLogger(), WithWorkers(1))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	err := q.Enqueue(context.Background(), newTask(uuid.New()))
	assert.ErrorIs(t, err, common.ErrBusy)
}

func TestShutdownWaitsForBlockedEnqueue(t *testing.T) {
	runner := newBlockingRunner()
	q := NewJobQueue(runner, testLogger(), WithWorkers(1), WithQueueSize(1))

	// First task occupies the single worker, second fills the channel, so
	// the third producer parks in the backpressure send.
	require.NoError(t, q.Enqueue(context.Background(), newTask(uuid.New())))
	waitStarted(t, runner)
	require.NoError(t, q.Enqueue(context.Background(), newTask(uuid.New())))

	enqueued := make(chan error, 1)
	go func() { enqueued <- q.Enqueue(context.Background(), newTask(uuid.New())) }()
	time.Sleep(50 * time.Millisecond)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		q.Shutdown(ctx)
	}()

	close(runner.release)

	select {
	case err := <-enqueued:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("blocked producer never completed")
	}
	select {
	case <-shutdownDone:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown never completed")
	}

	// Every admitted task ran; none was dropped or left its company slot held.
	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Len(t, runner.ran, 3)
}

func TestShutdownDrainsQueuedJobs(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)
	q := NewJobQueue(runner, testLogger(), WithWorkers(2))

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(context.Background(), newTask(uuid.New())))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Len(t, runner.ran, 5)
}

func shutdown(t *testing.T, q *JobQueue, runner *blockingRunner) {
	t.Helper()
	close(runner.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)
}
