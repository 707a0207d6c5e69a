package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// createScript stores a waiting job unless the member key points at a live
// job, in which case that job's body is returned.
var createScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current then
  local body = redis.call('GET', ARGV[3] .. current)
  if body then
    return {0, body}
  end
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SET', KEYS[2], ARGV[2])
redis.call('RPUSH', KEYS[3], ARGV[1])
redis.call('SADD', KEYS[4], ARGV[1])
return {1, ARGV[2]}
`)

// claimScript hands out the oldest active job whose heartbeat is stale, or
// else pops the oldest waiting job and activates it. Popping and activating
// happen in one step so a crash cannot leave a job in no list.
var claimScript = redis.NewScript(`
local id = nil
local reclaim = false
local stale = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', '(' .. ARGV[3], 'LIMIT', 0, 1)
if #stale > 0 then
  id = stale[1]
  reclaim = true
end
while true do
  if not id then
    id = redis.call('LPOP', KEYS[1])
    if not id then
      return false
    end
  end
  local raw = redis.call('GET', ARGV[1] .. id)
  local job = nil
  if raw then
    job = cjson.decode(raw)
    if job['state'] == 'completed' or job['state'] == 'failed' then
      job = nil
    end
  end
  if job then
    if reclaim then
      job['reclaims'] = (job['reclaims'] or 0) + 1
    end
    if not reclaim or not job['started_at'] then
      job['started_at'] = ARGV[4]
    end
    job['state'] = 'active'
    local body = cjson.encode(job)
    redis.call('SET', ARGV[1] .. id, body)
    redis.call('SMOVE', KEYS[3], KEYS[4], id)
    redis.call('ZADD', KEYS[2], ARGV[2], id)
    return body
  end
  redis.call('ZREM', KEYS[2], id)
  redis.call('SREM', KEYS[3], id)
  redis.call('SREM', KEYS[4], id)
  id = nil
  reclaim = false
end
`)

// finishScript records the terminal body and releases the member key if it
// still belongs to this job.
var finishScript = redis.NewScript(`
redis.call('SET', KEYS[1], ARGV[2])
if redis.call('GET', KEYS[2]) == ARGV[1] then
  redis.call('DEL', KEYS[2])
end
redis.call('SREM', KEYS[3], ARGV[1])
redis.call('SADD', KEYS[4], ARGV[1])
redis.call('ZADD', KEYS[5], ARGV[3], ARGV[1])
redis.call('ZREM', KEYS[6], ARGV[1])
return 1
`)

// RedisStore keeps jobs in Redis so that status survives restarts and can be
// shared by several service instances.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore builds a store whose keys start with prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "squad:jobs"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) jobPrefix() string                { return s.prefix + ":job:" }
func (s *RedisStore) jobKey(id string) string          { return s.jobPrefix() + id }
func (s *RedisStore) memberKey(memberID string) string { return s.prefix + ":member:" + memberID }
func (s *RedisStore) waitingKey() string               { return s.prefix + ":waiting" }
func (s *RedisStore) finishedKey() string              { return s.prefix + ":finished" }
func (s *RedisStore) heartbeatKey() string             { return s.prefix + ":heartbeat" }
func (s *RedisStore) stateKey(state JobState) string   { return s.prefix + ":state:" + string(state) }

func (s *RedisStore) Create(ctx context.Context, job Job) (Job, bool, error) {
	job.State = JobWaiting
	body, err := json.Marshal(job)
	if err != nil {
		return Job{}, false, fmt.Errorf("encode job: %w", err)
	}
	res, err := createScript.Run(ctx, s.client,
		[]string{s.memberKey(job.MemberID), s.jobKey(job.ID), s.waitingKey(), s.stateKey(JobWaiting)},
		job.ID, string(body), s.jobPrefix(),
	).Slice()
	if err != nil {
		return Job{}, false, fmt.Errorf("create job: %w", err)
	}
	if len(res) != 2 {
		return Job{}, false, fmt.Errorf("create job: unexpected reply %v", res)
	}
	created, _ := res[0].(int64)
	raw, _ := res[1].(string)
	stored, err := decodeJob(raw)
	if err != nil {
		return Job{}, false, err
	}
	return stored, created == 1, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Job, error) {
	raw, err := s.client.Get(ctx, s.jobKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Job{}, ErrJobNotFound
		}
		return Job{}, fmt.Errorf("get job: %w", err)
	}
	return decodeJob(raw)
}

func (s *RedisStore) Claim(ctx context.Context, now, staleBefore time.Time) (Job, bool, error) {
	raw, err := claimScript.Run(ctx, s.client,
		[]string{s.waitingKey(), s.heartbeatKey(), s.stateKey(JobWaiting), s.stateKey(JobActive)},
		s.jobPrefix(), millis(now), millis(staleBefore), now.Format(time.RFC3339Nano),
	).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Job{}, false, nil
		}
		return Job{}, false, fmt.Errorf("claim job: %w", err)
	}
	job, err := decodeJob(raw)
	if err != nil {
		return Job{}, false, err
	}
	return job, true, nil
}

func (s *RedisStore) SetAttempts(ctx context.Context, id string, attempts int, now time.Time) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	job.Attempts = attempts
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.jobKey(id), body, 0)
		pipe.ZAddXX(ctx, s.heartbeatKey(), redis.Z{Score: float64(now.UnixMilli()), Member: id})
		return nil
	})
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

func (s *RedisStore) Finish(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	finished := time.Now()
	if job.FinishedAt != nil {
		finished = *job.FinishedAt
	}
	err = finishScript.Run(ctx, s.client,
		[]string{s.jobKey(job.ID), s.memberKey(job.MemberID), s.stateKey(JobActive), s.stateKey(job.State), s.finishedKey(), s.heartbeatKey()},
		job.ID, string(body), millis(finished),
	).Err()
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return nil
}

func (s *RedisStore) Counts(ctx context.Context) (Counts, error) {
	states := []JobState{JobWaiting, JobActive, JobCompleted, JobFailed}
	cmds := make([]*redis.IntCmd, len(states))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, state := range states {
			cmds[i] = pipe.SCard(ctx, s.stateKey(state))
		}
		return nil
	})
	if err != nil {
		return Counts{}, fmt.Errorf("count jobs: %w", err)
	}
	var c Counts
	for i, state := range states {
		c.add(state, int(cmds[i].Val()))
	}
	return c, nil
}

func (s *RedisStore) Prune(ctx context.Context, before time.Time) (int, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.finishedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + millis(before),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("list finished jobs: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		members := make([]interface{}, len(ids))
		for i, id := range ids {
			pipe.Del(ctx, s.jobKey(id))
			members[i] = id
		}
		pipe.SRem(ctx, s.stateKey(JobCompleted), members...)
		pipe.SRem(ctx, s.stateKey(JobFailed), members...)
		pipe.ZRem(ctx, s.finishedKey(), members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return len(ids), nil
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func decodeJob(raw string) (Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}
