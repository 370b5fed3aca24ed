package redis

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipdocket/ipdocket/internal/domain/docket"
	"github.com/ipdocket/ipdocket/internal/domain/matter"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
)

type countingRuleRepo struct {
	docket.TaskRuleRepository
	calls atomic.Int32
	rules []*docket.TaskRule
}

func (r *countingRuleRepo) ListByTrigger(_ context.Context, _ string) ([]*docket.TaskRule, error) {
	r.calls.Add(1)
	return r.rules, nil
}

func testClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewClientWithRedis(rdb, "ipdocket", logging.NewNopLogger()), mr
}

func TestRuleCache_SecondReadHitsCache(t *testing.T) {
	client, _ := testClient(t)
	repo := &countingRuleRepo{rules: []*docket.TaskRule{
		{ID: 1, TaskCode: "RESP", Trigger: matter.EventFiled, Action: docket.ActionCreate, OffsetMonths: 4, Active: true},
	}}
	cache := NewRuleCache(client, repo, time.Minute, logging.NewNopLogger())

	ctx := context.Background()
	first, err := cache.RulesForTrigger(ctx, matter.EventFiled)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := cache.RulesForTrigger(ctx, matter.EventFiled)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.EqualValues(t, 1, repo.calls.Load())
}

func TestRuleCache_InvalidateForcesReload(t *testing.T) {
	client, _ := testClient(t)
	repo := &countingRuleRepo{rules: []*docket.TaskRule{
		{ID: 7, TaskCode: "REN", Trigger: matter.EventFiled, Action: docket.ActionCreate, Recurring: true, Active: true},
	}}
	cache := NewRuleCache(client, repo, time.Minute, logging.NewNopLogger())

	ctx := context.Background()
	_, err := cache.RulesForTrigger(ctx, matter.EventFiled)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, matter.EventFiled))

	_, err = cache.RulesForTrigger(ctx, matter.EventFiled)
	require.NoError(t, err)
	assert.EqualValues(t, 2, repo.calls.Load())
}

func TestRuleCache_CorruptEntryFallsThrough(t *testing.T) {
	client, mr := testClient(t)
	repo := &countingRuleRepo{rules: []*docket.TaskRule{
		{ID: 3, TaskCode: "EXP", Trigger: matter.EventFiled, Action: docket.ActionExpiry, Active: true},
	}}
	cache := NewRuleCache(client, repo, time.Minute, logging.NewNopLogger())

	require.NoError(t, mr.Set("ipdocket:rules:FIL", "{not json"))

	rules, err := cache.RulesForTrigger(context.Background(), matter.EventFiled)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.EqualValues(t, 1, repo.calls.Load())
}
