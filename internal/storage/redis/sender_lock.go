package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	xerrors "OpenMCP-EVM/internal/errors"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockConfig 描述发送方锁使用的 Redis 参数。
type LockConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
	Retry    time.Duration
}

func (c *LockConfig) applyDefaults() {
	if c.Prefix == "" {
		c.Prefix = "toolbox:sender:"
	}
	if c.TTL <= 0 {
		c.TTL = 3 * time.Minute
	}
	if c.Retry <= 0 {
		c.Retry = 100 * time.Millisecond
	}
}

// SenderLock 使用 Redis SET NX 在多个实例之间串行化同一发送方的广播。
type SenderLock struct {
	client *goredis.Client
	owned  bool
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// NewSenderLock 连接 Redis 并创建发送方锁。
func NewSenderLock(ctx context.Context, cfg LockConfig) (*SenderLock, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	lock := NewSenderLockWithClient(client, cfg)
	lock.owned = true
	return lock, nil
}

// NewSenderLockWithClient 复用已有的 Redis 客户端，Close 不会关闭该客户端。
func NewSenderLockWithClient(client *goredis.Client, cfg LockConfig) *SenderLock {
	cfg.applyDefaults()
	return &SenderLock{client: client, prefix: cfg.Prefix, ttl: cfg.TTL, retry: cfg.Retry}
}

// Acquire 阻塞直到获得 key 对应的锁或 ctx 结束。锁在 TTL 后自动过期。
func (l *SenderLock) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + strings.ToLower(strings.TrimSpace(key))
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "等待发送方锁超时")
			}
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取发送方锁失败")
		}
		if ok {
			return func() { l.release(redisKey, token) }, nil
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "等待发送方锁超时")
		case <-timer.C:
		}
	}
}

func (l *SenderLock) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
}

// Close 关闭自行创建的 Redis 连接。
func (l *SenderLock) Close() error {
	if l == nil || !l.owned {
		return nil
	}
	return l.client.Close()
}
