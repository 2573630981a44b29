package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	platformredis "aurum/internal/platform/redis"
)

// CachedGate fronts a Gate with a short-lived Redis cache. Only COMPLIANT
// results are cached: denials always re-consult the gate so a remediated
// entity is not kept locked out, and cache failures fall through to the gate
// rather than failing open.
type CachedGate struct {
	gate   Gate
	client *platformredis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedGate wraps gate. A nil redis client returns the gate unchanged.
func NewCachedGate(gate Gate, client *platformredis.Client, ttl time.Duration, logger *slog.Logger) Gate {
	if client == nil {
		return gate
	}
	return &CachedGate{gate: gate, client: client, ttl: ttl, logger: logger}
}

func cacheKey(entityID, entityType string) string {
	return fmt.Sprintf("aurum:compliance:%s:%s", entityType, entityID)
}

func (g *CachedGate) Check(ctx context.Context, entityID, entityType string, requiredChecks []string) (Check, error) {
	key := cacheKey(entityID, entityType)

	if raw, err := g.client.Get(ctx, key).Bytes(); err == nil {
		var cached Check
		if err := json.Unmarshal(raw, &cached); err == nil && cached.Passed() {
			return cached, nil
		}
	}

	check, err := g.gate.Check(ctx, entityID, entityType, requiredChecks)
	if err != nil {
		return check, err
	}

	if check.Passed() {
		if raw, marshalErr := json.Marshal(check); marshalErr == nil {
			if setErr := g.client.Set(ctx, key, raw, g.ttl).Err(); setErr != nil && g.logger != nil {
				g.logger.WarnContext(ctx, "compliance cache write failed", "error", setErr)
			}
		}
	}
	return check, nil
}
