// Package cache travas distribuídas (Redis) com alternativa em memória para uma instância só.
package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jhoicas/cte-api/internal/application/inbound"
)

const lockPrefix = "cte:lock:"

// releaseScript apaga a chave só se o token ainda for o nosso (a trava pode ter expirado
// e sido tomada por outra instância).
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Connect cria o cliente a partir de redis://... ou host:porta.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

var (
	_ inbound.Locker = (*RedisLocker)(nil)
	_ inbound.Locker = (*MemoryLocker)(nil)
)

// RedisLocker trava com SET NX PX; a liberação compara o token antes de apagar.
type RedisLocker struct {
	client redis.UniversalClient
}

// NewRedisLocker cria a trava sobre o cliente.
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire tenta travar key por ttl sem bloquear.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token, err := newToken()
	if err != nil {
		return nil, false, err
	}
	redisKey := lockPrefix + key
	ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	var once sync.Once
	release := func() {
		once.Do(func() {
			// o ctx da requisição pode já ter sido cancelado
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err()
		})
	}
	return release, true, nil
}

// MemoryLocker trava local com expiração, usada quando REDIS_URL não está configurada.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]memoryLock
	now   func() time.Time
	state uint64
}

type memoryLock struct {
	token   uint64
	expires time.Time
}

// NewMemoryLocker cria a trava em memória.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]memoryLock), now: time.Now}
}

// Acquire implementa inbound.Locker.
func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return nil, false, nil
	}
	l.state++
	token := l.state
	l.held[key] = memoryLock{token: token, expires: now.Add(ttl)}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if cur, ok := l.held[key]; ok && cur.token == token {
				delete(l.held, key)
			}
		})
	}
	return release, true, nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("gerar token da trava: %w", err)
	}
	return hex.EncodeToString(b), nil
}
