package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"secret.link/internal/models"
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps each secret in a hash: the immutable record gob-encoded
// under "data" and the mutable flag under "viewed". Slugs are reserved with
// a key that never expires; owners are indexed by a sorted set scored on
// creation time.
type RedisStore struct {
	client     *redis.Client
	purgeAfter time.Duration
}

func NewRedisStore(options *redis.Options, purgeAfter time.Duration) (*RedisStore, error) {
	client := redis.NewClient(options)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisStore{client: client, purgeAfter: purgeAfter}, nil
}

const (
	fieldData   = "data"
	fieldViewed = "viewed"
)

func (r *RedisStore) Insert(ctx context.Context, secret *models.Secret) error {
	reserved, err := r.client.SetNX(ctx, slugKey(secret.Slug), secret.ID, 0).Result()
	if err != nil {
		return err
	}
	if !reserved {
		return ErrSlugTaken
	}

	body := *secret
	body.Viewed = false
	data, err := encode(&body)
	if err != nil {
		return err
	}

	key := secretKey(secret.Slug)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldData, data, fieldViewed, boolField(secret.Viewed))
		if r.purgeAfter > 0 {
			pipe.ExpireAt(ctx, key, secret.ExpiresAt.Add(r.purgeAfter))
		}
		if secret.UserID != "" {
			pipe.ZAdd(ctx, ownerKey(secret.UserID), redis.Z{
				Score:  float64(secret.CreatedAt.UnixNano()),
				Member: secret.Slug,
			})
		}
		return nil
	})
	return err
}

func (r *RedisStore) Get(ctx context.Context, slug string) (*models.Secret, error) {
	fields, err := r.client.HGetAll(ctx, secretKey(slug)).Result()
	if err != nil {
		return nil, err
	}
	return fromHash(fields)
}

// markViewedScript returns -1 for a missing key, 0 when already viewed and 1
// when this call set the flag.
var markViewedScript = redis.NewScript(`
	local key = KEYS[1]
	if redis.call('EXISTS', key) == 0 then
		return -1
	end
	if redis.call('HGET', key, 'viewed') == '1' then
		return 0
	end
	redis.call('HSET', key, 'viewed', '1')
	return 1
`)

func (r *RedisStore) MarkViewed(ctx context.Context, slug string) (bool, error) {
	res, err := markViewedScript.Run(ctx, r.client, []string{secretKey(slug)}).Int()
	if err != nil {
		return false, err
	}

	switch res {
	case -1:
		return false, ErrNotFound
	case 1:
		return true, nil
	default:
		return false, nil
	}
}

func (r *RedisStore) Delete(ctx context.Context, slug string) error {
	secret, err := r.Get(ctx, slug)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, secretKey(slug))
		if secret.UserID != "" {
			pipe.ZRem(ctx, ownerKey(secret.UserID), slug)
		}
		return nil
	})
	return err
}

func (r *RedisStore) ListByOwner(ctx context.Context, ownerID string) ([]*models.Secret, error) {
	index := ownerKey(ownerID)
	slugs, err := r.client.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(slugs) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(slugs))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, slug := range slugs {
			cmds[i] = pipe.HGetAll(ctx, secretKey(slug))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var (
		out    []*models.Secret
		purged []any
	)
	for i, cmd := range cmds {
		secret, err := fromHash(cmd.Val())
		if errors.Is(err, ErrNotFound) {
			purged = append(purged, slugs[i])
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, secret)
	}

	if len(purged) > 0 {
		_ = r.client.ZRem(ctx, index, purged...).Err()
	}
	return out, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Helpers

func secretKey(slug string) string {
	return "secret:" + slug
}

func slugKey(slug string) string {
	return "slug:" + slug
}

func ownerKey(ownerID string) string {
	return "owner:" + ownerID + ":secrets"
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func fromHash(fields map[string]string) (*models.Secret, error) {
	data, ok := fields[fieldData]
	if !ok {
		return nil, ErrNotFound
	}

	secret, err := decode([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("decoding secret: %w", err)
	}
	secret.Viewed = fields[fieldViewed] == "1"
	return secret, nil
}

func encode(secret *models.Secret) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(secret); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte) (*models.Secret, error) {
	var secret models.Secret
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&secret); err != nil {
		return nil, err
	}
	return &secret, nil
}
