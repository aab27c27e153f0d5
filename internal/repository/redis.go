package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/pdf-task-processor/internal/models"
)

const (
	defaultKeyPrefix = "pdftask"
	maxTxRetries     = 10
)

// KEYS[1] leases hash, ARGV[1] file key prefix, ARGV[2..] ids.
var acquireScript = redis.NewScript(`
for i = 2, #ARGV do
  if redis.call('EXISTS', ARGV[1] .. ARGV[i]) == 1 then
    redis.call('HINCRBY', KEYS[1], ARGV[i], 1)
  end
end
return 0
`)

// KEYS[1] leases hash, ARGV ids.
var releaseScript = redis.NewScript(`
for i = 1, #ARGV do
  local n = redis.call('HINCRBY', KEYS[1], ARGV[i], -1)
  if n <= 0 then
    redis.call('HDEL', KEYS[1], ARGV[i])
  end
end
return 0
`)

// KEYS[1] file key, KEYS[2] leases hash, KEYS[3] index zset, ARGV[1] id.
// Returns the deleted JSON, false when missing, or -1 when leased.
var deleteScript = redis.NewScript(`
local leases = tonumber(redis.call('HGET', KEYS[2], ARGV[1]) or '0')
if leases > 0 then
  return -1
end
local data = redis.call('GET', KEYS[1])
if not data then
  return false
end
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[3], ARGV[1])
return data
`)

// redisKeys derives every key used by the redis repositories.
type redisKeys struct {
	prefix string
}

func (k redisKeys) fileSeq() string {
	return k.prefix + ":file:seq"
}

func (k redisKeys) filePrefix() string {
	return k.prefix + ":file:"
}

func (k redisKeys) file(id int64) string {
	return k.filePrefix() + strconv.FormatInt(id, 10)
}

func (k redisKeys) fileIndex() string {
	return k.prefix + ":files"
}

func (k redisKeys) fileLeases() string {
	return k.prefix + ":file:leases"
}

func (k redisKeys) taskSeq() string {
	return k.prefix + ":task:seq"
}

func (k redisKeys) task(id int64) string {
	return k.prefix + ":task:" + strconv.FormatInt(id, 10)
}

func newRedisKeys(prefix string) redisKeys {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return redisKeys{prefix: prefix}
}

type redisFileRepository struct {
	client redis.UniversalClient
	keys   redisKeys
}

// NewRedisFileRepository stores file records as JSON values, an id-scored
// sorted set for listing and a hash of lease counts.
func NewRedisFileRepository(client redis.UniversalClient, prefix string) FileRepository {
	return &redisFileRepository{client: client, keys: newRedisKeys(prefix)}
}

func (r *redisFileRepository) Create(ctx context.Context, f *models.StoredFile) (*models.StoredFile, error) {
	id, err := r.client.Incr(ctx, r.keys.fileSeq()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate file id: %w", err)
	}
	stored := f.Clone()
	stored.ID = id

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal file: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.keys.file(id), data, 0)
		p.ZAdd(ctx, r.keys.fileIndex(), redis.Z{Score: float64(id), Member: id})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}
	return stored, nil
}

func (r *redisFileRepository) Get(ctx context.Context, id int64) (*models.StoredFile, error) {
	data, err := r.client.Get(ctx, r.keys.file(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return decodeFile(data)
}

func (r *redisFileRepository) List(ctx context.Context) ([]*models.StoredFile, error) {
	ids, err := r.client.ZRange(ctx, r.keys.fileIndex(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	if len(ids) == 0 {
		return []*models.StoredFile{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.keys.filePrefix() + id
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load files: %w", err)
	}

	out := make([]*models.StoredFile, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			// deleted between ZRANGE and MGET
			continue
		}
		f, err := decodeFile([]byte(s))
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (r *redisFileRepository) Delete(ctx context.Context, id int64) (*models.StoredFile, error) {
	res, err := deleteScript.Run(ctx, r.client,
		[]string{r.keys.file(id), r.keys.fileLeases(), r.keys.fileIndex()},
		strconv.FormatInt(id, 10),
	).Result()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete file: %w", err)
	}

	switch v := res.(type) {
	case int64:
		return nil, models.ErrFileInUse
	case string:
		return decodeFile([]byte(v))
	default:
		return nil, fmt.Errorf("unexpected delete result %T", res)
	}
}

func (r *redisFileRepository) Acquire(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, r.keys.filePrefix())
	for _, id := range ids {
		args = append(args, strconv.FormatInt(id, 10))
	}
	if err := acquireScript.Run(ctx, r.client, []string{r.keys.fileLeases()}, args...).Err(); err != nil {
		return fmt.Errorf("failed to acquire leases: %w", err)
	}
	return nil
}

func (r *redisFileRepository) Release(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, strconv.FormatInt(id, 10))
	}
	if err := releaseScript.Run(ctx, r.client, []string{r.keys.fileLeases()}, args...).Err(); err != nil {
		return fmt.Errorf("failed to release leases: %w", err)
	}
	return nil
}

func decodeFile(data []byte) (*models.StoredFile, error) {
	var f models.StoredFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal file: %w", err)
	}
	return &f, nil
}

type redisTaskRepository struct {
	client redis.UniversalClient
	keys   redisKeys
}

// NewRedisTaskRepository stores each task as one JSON value. Updates run in
// a WATCH/MULTI transaction so readers only ever see whole snapshots.
func NewRedisTaskRepository(client redis.UniversalClient, prefix string) TaskRepository {
	return &redisTaskRepository{client: client, keys: newRedisKeys(prefix)}
}

func (r *redisTaskRepository) Create(ctx context.Context, t *models.ProcessingTask) (*models.ProcessingTask, error) {
	id, err := r.client.Incr(ctx, r.keys.taskSeq()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate task id: %w", err)
	}
	stored := t.Clone()
	stored.ID = id

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}
	if err := r.client.Set(ctx, r.keys.task(id), data, 0).Err(); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}
	return stored, nil
}

func (r *redisTaskRepository) Get(ctx context.Context, id int64) (*models.ProcessingTask, error) {
	data, err := r.client.Get(ctx, r.keys.task(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return decodeTask(data)
}

func (r *redisTaskRepository) Update(ctx context.Context, id int64, u models.TaskUpdate) (*models.ProcessingTask, error) {
	key := r.keys.task(id)
	var updated *models.ProcessingTask

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return models.ErrTaskNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get task: %w", err)
		}
		t, err := decodeTask(data)
		if err != nil {
			return err
		}
		if err := t.Apply(u, time.Now()); err != nil {
			return err
		}
		payload, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal task: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, payload, 0)
			return nil
		})
		if err == nil {
			updated = t
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("failed to update task %d: too many concurrent writers", id)
}

func decodeTask(data []byte) (*models.ProcessingTask, error) {
	var t models.ProcessingTask
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	if t.OutputFiles == nil {
		t.OutputFiles = []models.OutputFile{}
	}
	return &t, nil
}
