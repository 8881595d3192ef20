package quota

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/samber/do"
)

const (
	stateKeyPrefix   = "quota:state:"
	addressKeyPrefix = "quota:addr:"
	grantKeyPrefix   = "quota:grant:"
)

// RedisStore is the shared counter backend for multi-replica deployments.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(i *do.Injector) (Store, error) {
	return &RedisStore{client: do.MustInvoke[*redis.Client](i)}, nil
}

func (r *RedisStore) State(ctx context.Context, key string) (State, error) {
	fields, err := r.client.HGetAll(ctx, stateKeyPrefix+key).Result()
	if err != nil {
		return State{}, err
	}
	var st State
	if v, ok := fields["free_used"]; ok {
		if st.FreeUsed, err = strconv.Atoi(v); err != nil {
			return State{}, fmt.Errorf("corrupt free_used for %s: %w", key, err)
		}
	}
	if v, ok := fields["credits"]; ok {
		if st.Credits, err = strconv.Atoi(v); err != nil {
			return State{}, fmt.Errorf("corrupt credits for %s: %w", key, err)
		}
	}
	return st, nil
}

// debitScript consumes one unit, free allowance before credits, entirely
// server-side so concurrent replicas cannot lose a debit.
var debitScript = redis.NewScript(`
local free = tonumber(redis.call('HGET', KEYS[1], 'free_used') or '0')
local credits = tonumber(redis.call('HGET', KEYS[1], 'credits') or '0')
if free < tonumber(ARGV[1]) then
	free = redis.call('HINCRBY', KEYS[1], 'free_used', 1)
elseif credits > 0 then
	credits = redis.call('HINCRBY', KEYS[1], 'credits', -1)
end
return {free, credits}
`)

func (r *RedisStore) Debit(ctx context.Context, key string) (State, error) {
	vals, err := debitScript.Run(ctx, r.client, []string{stateKeyPrefix + key}, FreeQuota).Int64Slice()
	if err != nil {
		return State{}, err
	}
	if len(vals) != 2 {
		return State{}, fmt.Errorf("unexpected debit reply for %s: %v", key, vals)
	}
	return State{FreeUsed: int(vals[0]), Credits: int(vals[1])}, nil
}

func (r *RedisStore) AddressCount(ctx context.Context, hash string) (int, error) {
	count, err := r.client.Get(ctx, addressKeyPrefix+hash).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return count, err
}

func (r *RedisStore) IncrementAddress(ctx context.Context, hash string) (int, error) {
	count, err := r.client.Incr(ctx, addressKeyPrefix+hash).Result()
	return int(count), err
}

func (r *RedisStore) GrantCredits(ctx context.Context, key, sessionID string, amount int) (int, bool, error) {
	fresh, err := r.client.SetNX(ctx, grantKeyPrefix+sessionID, amount, 0).Result()
	if err != nil {
		return 0, false, err
	}
	if !fresh {
		st, err := r.State(ctx, key)
		if err != nil {
			return 0, false, err
		}
		return st.Credits, true, nil
	}
	total, err := r.client.HIncrBy(ctx, stateKeyPrefix+key, "credits", int64(amount)).Result()
	if err != nil {
		return 0, false, err
	}
	return int(total), false, nil
}
