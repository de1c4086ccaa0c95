package docstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"glaze-bot/internal/domain"
	"glaze-bot/internal/infra/metrics"
)

const (
	redisFieldBody    = "body"
	redisFieldVersion = "version"
	redisFieldMessage = "message"
)

// redisCAS сравнивает версию и записывает хеш атомарно на стороне сервера.
// Возвращает новую версию или -1 при несовпадении.
var redisCAS = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if not current then current = '' end
if current ~= ARGV[1] then return -1 end
local nextVersion = 1
if current ~= '' then nextVersion = tonumber(current) + 1 end
redis.call('HSET', KEYS[1], 'body', ARGV[2], 'version', tostring(nextVersion), 'message', ARGV[3])
return nextVersion
`)

// RedisClient покрывает команды, которые использует бэкенд; *redis.Client ему удовлетворяет.
type RedisClient interface {
	redis.Scripter
	HMGet(ctx context.Context, key string, fields ...string) *redis.SliceCmd
}

// Redis хранит документ в хеше; версия проверяется Lua-скриптом.
type Redis struct {
	client RedisClient
	key    string
}

var _ domain.DocumentBackend = (*Redis)(nil)

// NewRedis создаёт бэкенд для ключа key.
func NewRedis(client RedisClient, key string) *Redis {
	return &Redis{client: client, key: key}
}

// Get реализует domain.DocumentBackend.
func (r *Redis) Get(ctx context.Context) ([]byte, domain.Token, error) {
	start := time.Now()
	values, err := r.client.HMGet(ctx, r.key, redisFieldBody, redisFieldVersion).Result()
	metrics.ObserveNetworkRequest("redis", "document_get", r.key, start, err)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if len(values) != 2 || values[0] == nil {
		return nil, "", domain.ErrDocumentNotFound
	}
	body, _ := values[0].(string)
	version, _ := values[1].(string)
	return []byte(body), domain.Token(version), nil
}

// PutIfMatch реализует domain.DocumentBackend.
func (r *Redis) PutIfMatch(ctx context.Context, body []byte, expected domain.Token, message string) (domain.Token, error) {
	start := time.Now()
	next, err := redisCAS.Run(ctx, r.client, []string{r.key}, string(expected), body, message).Int64()
	metrics.ObserveNetworkRequest("redis", "document_put", r.key, start, err)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if next < 0 {
		return "", domain.ErrConflict
	}
	return domain.Token(strconv.FormatInt(next, 10)), nil
}
