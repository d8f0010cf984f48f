package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// unlockScript deletes the key only while it still holds our token, so an
// expired lease never releases a lock another device took over.
const unlockScript = `
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
return redis.call("DEL", KEYS[1])
`

// mutationLock serializes execution of one idempotency key across API nodes.
type mutationLock struct {
	client *redis.Client
	unlock *redis.Script
	ttl    time.Duration
}

func newMutationLock(client *redis.Client, ttl time.Duration) (*mutationLock, error) {
	if client == nil {
		return nil, errors.New("mutation lock requires a redis client")
	}
	if ttl <= 0 {
		ttl = defaultKeyLockTTL
	}
	return &mutationLock{client: client, unlock: redis.NewScript(unlockScript), ttl: ttl}, nil
}

// acquire returns the lease token, or ok=false while another request holds
// the key.
func (m *mutationLock) acquire(ctx context.Context, orgID, key string) (token string, ok bool, err error) {
	name, err := mutationLockKey(orgID, key)
	if err != nil {
		return "", false, err
	}
	token = uuid.NewString()
	ok, err = m.client.SetNX(ctx, name, token, m.ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

func (m *mutationLock) release(ctx context.Context, orgID, key, token string) error {
	if token == "" {
		return nil
	}
	name, err := mutationLockKey(orgID, key)
	if err != nil {
		return err
	}
	return m.unlock.Run(ctx, m.client, []string{name}, token).Err()
}

func mutationLockKey(orgID, key string) (string, error) {
	orgID, key = strings.TrimSpace(orgID), strings.TrimSpace(key)
	if orgID == "" || key == "" {
		return "", errors.New("mutation lock needs an org and an idempotency key")
	}
	return fmt.Sprintf(keySyncMutationKey, orgID, key), nil
}
