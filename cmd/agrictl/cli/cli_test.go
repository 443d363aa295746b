package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/guilhermemayrinkal/agribackend/internal/auth"
	"github.com/guilhermemayrinkal/agribackend/internal/identity"
	"github.com/guilhermemayrinkal/agribackend/jobs"
)

type stubEnqueuer struct {
	tasks []*asynq.Task
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func (s stubInspector) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return []*asynq.TaskInfo{{ID: "scheduled-1"}}, s.err
}

func TestScanCommandEnqueuesScopedScan(t *testing.T) {
	enqueuer := &stubEnqueuer{}
	cli := NewJobsCLIWith(enqueuer, stubInspector{})
	cli.now = func() time.Time { return time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC) }

	stdout := new(bytes.Buffer)
	code := cli.ScanCommand(context.Background(), ScanOptions{CompanyID: "company-1", Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), "company company-1")
	require.Len(t, enqueuer.tasks, 1)

	var payload jobs.LowStockScanPayload
	require.NoError(t, json.Unmarshal(enqueuer.tasks[0].Payload(), &payload))
	require.Equal(t, "company-1", payload.CompanyID)
	require.Equal(t, jobs.TaskInventoryLowStockScan, enqueuer.tasks[0].Type())
}

func TestTriggerRejectsUnknownJob(t *testing.T) {
	cli := NewJobsCLIWith(&stubEnqueuer{}, stubInspector{})
	_, err := cli.Trigger(context.Background(), "unknown", "")
	require.Error(t, err)
}

func TestStatsCommand(t *testing.T) {
	cli := NewJobsCLIWith(&stubEnqueuer{}, stubInspector{info: &asynq.QueueInfo{Pending: 4, Retry: 1}})

	stdout := new(bytes.Buffer)
	require.Equal(t, 0, cli.StatsCommand(context.Background(), StatsOptions{JSONOutput: true, Stdout: stdout}))
	var stats QueueStats
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &stats))
	require.Equal(t, QueueStats{Queue: jobs.QueueDefault, Pending: 4, Retry: 1}, stats)

	stdout.Reset()
	require.Equal(t, 0, cli.StatsCommand(context.Background(), StatsOptions{Stdout: stdout}))
	require.True(t, strings.HasPrefix(stdout.String(), "queue default: pending=4"))

	failing := NewJobsCLIWith(&stubEnqueuer{}, stubInspector{err: errors.New("redis down")})
	stderr := new(bytes.Buffer)
	require.Equal(t, 1, failing.StatsCommand(context.Background(), StatsOptions{Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "redis down")
}

func TestSessionCommands(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := auth.NewSessionStore(client, time.Hour)
	ctx := context.Background()

	stdout := new(bytes.Buffer)
	code := IssueSessionCommand(ctx, store, SessionOptions{Kind: "company_user", ID: "user-1", CompanyID: "company-1", Stdout: stdout})
	require.Equal(t, 0, code)
	token := strings.TrimSpace(stdout.String())

	caller, err := store.Resolve(ctx, token)
	require.NoError(t, err)
	require.Equal(t, identity.CompanyUser("user-1", "company-1"), caller)

	require.Equal(t, 0, RevokeSessionCommand(ctx, store, token, new(bytes.Buffer)))
	_, err = store.Resolve(ctx, token)
	require.ErrorIs(t, err, auth.ErrSessionNotFound)

	stderr := new(bytes.Buffer)
	require.Equal(t, 1, IssueSessionCommand(ctx, store, SessionOptions{Kind: "wizard", ID: "x", Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Equal(t, 1, RevokeSessionCommand(ctx, store, "", stderr))
}
