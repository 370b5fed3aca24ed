package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ipdocket/ipdocket/internal/domain/docket"
	"github.com/ipdocket/ipdocket/internal/domain/matter"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
)

// RuleCache fronts the task-rule repository with a per-trigger Redis cache.
// Rules are configuration data read on every processed event and changed a
// few times a year; a short TTL keeps rule edits visible without a bus.
//
// The cache fails open: any Redis error falls through to the repository.
type RuleCache struct {
	client *Client
	rules  docket.TaskRuleRepository
	ttl    time.Duration
	logger logging.Logger
}

// NewRuleCache wires the cache in front of repo.
func NewRuleCache(client *Client, repo docket.TaskRuleRepository, ttl time.Duration, logger logging.Logger) *RuleCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RuleCache{client: client, rules: repo, ttl: ttl, logger: logger.Named("rule-cache")}
}

// RulesForTrigger returns the active rules for the trigger code, cached.
func (c *RuleCache) RulesForTrigger(ctx context.Context, code matter.EventCode) ([]*docket.TaskRule, error) {
	key := c.client.Key("rules", code.String())

	raw, err := c.client.Redis().Get(ctx, key).Bytes()
	if err == nil {
		var rules []*docket.TaskRule
		if uerr := json.Unmarshal(raw, &rules); uerr == nil {
			return rules, nil
		}
		// Corrupt entry: drop it and reload.
		_ = c.client.Redis().Del(ctx, key).Err()
	} else if !stderrors.Is(err, goredis.Nil) {
		c.logger.Warn("rule cache read failed, falling through",
			logging.String("trigger", code.String()),
			logging.Err(err))
	}

	rules, err := c.rules.ListByTrigger(ctx, code.String())
	if err != nil {
		return nil, err
	}

	if data, merr := json.Marshal(rules); merr == nil {
		if serr := c.client.Redis().Set(ctx, key, data, c.ttl).Err(); serr != nil {
			c.logger.Warn("rule cache write failed",
				logging.String("trigger", code.String()),
				logging.Err(serr))
		}
	}
	return rules, nil
}

// Invalidate drops the cached rule set for a trigger.  Called by the rule
// admin service after create/update/delete.
func (c *RuleCache) Invalidate(ctx context.Context, code matter.EventCode) error {
	return c.client.Redis().Del(ctx, c.client.Key("rules", code.String())).Err()
}
