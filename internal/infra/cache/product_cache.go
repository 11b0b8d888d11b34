package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"marketplace/internal/domain/model"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

func ProductKey(id int64) string {
	return "product:" + strconv.FormatInt(id, 10)
}

// 無効化のたびに進める世代番号。読み込み中に無効化されたら書き戻さない
func generationKey(id int64) string {
	return ProductKey(id) + ":gen"
}

// 世代キーはデータより長く残す（読み込み中に消えると比較できない）
const generationTTL = 24 * time.Hour

// KEYS[1]=データ KEYS[2]=世代 ARGV[1]=読み込み前の世代 ARGV[2]=JSON ARGV[3]=TTL(ms)
var setIfGeneration = redis.NewScript(`
local cur = redis.call("GET", KEYS[2])
if cur == false then cur = "" end
if cur ~= ARGV[1] then return 0 end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

type RedisProductCache struct {
	rdb   *redis.Client
	ttl   time.Duration
	group singleflight.Group
	log   *slog.Logger
}

func NewRedisProductCache(rdb *redis.Client, ttl time.Duration, log *slog.Logger) *RedisProductCache {
	return &RedisProductCache{rdb: rdb, ttl: ttl, log: log}
}

// NewRedisClientはREDIS_URLから接続してPINGまで確認する
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// キャッシュに無ければloadして入れる。同じIDの同時ミスはloadを1回にまとめる
// loadは呼び出し元のキャンセルを引き継がない（相乗りした他のリクエストがいるため）
// Redisの障害はログだけ出してDBから返す
func (c *RedisProductCache) GetOrLoad(ctx context.Context, id int64, load func(ctx context.Context, id int64) (model.Product, error)) (model.Product, error) {
	key := ProductKey(id)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p model.Product
		if err := json.Unmarshal(raw, &p); err == nil {
			return p, nil
		}
		c.log.WarnContext(ctx, "product cache decode failed", "key", key)
	case !errors.Is(err, redis.Nil):
		c.log.WarnContext(ctx, "product cache get failed", "key", key, "err", err)
	}

	lctx := context.WithoutCancel(ctx)
	gen, genOK := c.generation(lctx, id)

	//無効化の後に来た呼び出しは前の読み込みに相乗りしない
	ch := c.group.DoChan(key+"@"+gen, func() (interface{}, error) {
		p, err := load(lctx, id)
		if err != nil {
			return model.Product{}, err
		}
		if genOK {
			c.store(lctx, id, gen, p)
		}
		return p, nil
	})

	select {
	case <-ctx.Done():
		return model.Product{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return model.Product{}, res.Err
		}
		return res.Val.(model.Product), nil
	}
}

func (c *RedisProductCache) generation(ctx context.Context, id int64) (string, bool) {
	gen, err := c.rdb.Get(ctx, generationKey(id)).Result()
	switch {
	case err == nil:
		return gen, true
	case errors.Is(err, redis.Nil):
		return "", true
	}
	c.log.WarnContext(ctx, "product cache generation get failed", "id", id, "err", err)
	return "", false
}

// 読み込み前と世代が同じときだけ書く
func (c *RedisProductCache) store(ctx context.Context, id int64, gen string, p model.Product) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	keys := []string{ProductKey(id), generationKey(id)}
	if err := setIfGeneration.Run(ctx, c.rdb, keys, gen, data, c.ttl.Milliseconds()).Err(); err != nil {
		c.log.WarnContext(ctx, "product cache set failed", "key", keys[0], "err", err)
	}
}

// 世代を進めてからデータを消す。コミット後に呼ばれるのでキャンセルは引き継がない
func (c *RedisProductCache) Invalidate(ctx context.Context, ids ...int64) {
	if len(ids) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Incr(ctx, generationKey(id))
			pipe.Expire(ctx, generationKey(id), generationTTL)
			pipe.Del(ctx, ProductKey(id))
		}
		return nil
	})
	if err != nil {
		c.log.WarnContext(ctx, "product cache invalidate failed", "ids", ids, "err", err)
	}
}

// REDIS_URLが無いとき用
type Nop struct{}

func (Nop) GetOrLoad(ctx context.Context, id int64, load func(ctx context.Context, id int64) (model.Product, error)) (model.Product, error) {
	return load(ctx, id)
}

func (Nop) Invalidate(context.Context, ...int64) {}
