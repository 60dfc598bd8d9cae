package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisRunPrefix  = "synthide:run:"
	redisPendingKey = "synthide:runs:pending"
)

// Redis stores each run as a hash and queues pending run ids on a list.
// Run hashes expire ttl after their last write.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

var _ RunStore = (*Redis)(nil)

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return rdb, nil
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl, now: time.Now}
}

func runKey(id uuid.UUID) string { return redisRunPrefix + id.String() }

func (r *Redis) CreateRun(ctx context.Context, arg CreateRunParams) (Run, error) {
	now := r.now().UTC()
	run := Run{
		ID:         uuid.New(),
		Language:   arg.Language,
		SourceCode: arg.SourceCode,
		Stdin:      arg.Stdin,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	key := runKey(run.ID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]interface{}{
			"language":    run.Language,
			"source_code": run.SourceCode,
			"stdin":       run.Stdin,
			"status":      string(run.Status),
			"created_at":  now.Format(time.RFC3339Nano),
			"updated_at":  now.Format(time.RFC3339Nano),
		})
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		pipe.LPush(ctx, redisPendingKey, run.ID.String())
		return nil
	})
	if err != nil {
		return Run{}, fmt.Errorf("redis create run: %w", err)
	}
	return run, nil
}

func (r *Redis) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	fields, err := r.client.HGetAll(ctx, runKey(id)).Result()
	if err != nil {
		return Run{}, fmt.Errorf("redis get run: %w", err)
	}
	if len(fields) == 0 {
		return Run{}, ErrNotFound
	}
	return decodeRun(id, fields)
}

func (r *Redis) ClaimNextRun(ctx context.Context) (Run, error) {
	for {
		raw, err := r.client.RPop(ctx, redisPendingKey).Result()
		if errors.Is(err, redis.Nil) {
			return Run{}, ErrNoPendingRuns
		}
		if err != nil {
			return Run{}, fmt.Errorf("redis claim run: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}

		run, err := r.update(ctx, id,
			"status", string(StatusRunning),
			"updated_at", r.now().UTC().Format(time.RFC3339Nano),
		)
		if errors.Is(err, ErrNotFound) {
			// expired before a worker reached it
			continue
		}
		if err != nil {
			return Run{}, fmt.Errorf("redis mark running: %w", err)
		}
		return run, nil
	}
}

func (r *Redis) FinishRun(ctx context.Context, id uuid.UUID, output string) (Run, error) {
	run, err := r.update(ctx, id,
		"status", string(StatusFinished),
		"output", output,
		"updated_at", r.now().UTC().Format(time.RFC3339Nano),
	)
	if errors.Is(err, ErrNotFound) {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("redis finish run: %w", err)
	}
	return run, nil
}

// update writes fields to an existing run hash and refreshes its ttl. The
// key is watched so a hash that expires concurrently is never recreated
// with only the updated fields.
func (r *Redis) update(ctx context.Context, id uuid.UUID, fields ...interface{}) (Run, error) {
	key := runKey(id)
	var run Run
	txf := func(tx *redis.Tx) error {
		current, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(current) == 0 {
			return ErrNotFound
		}
		for i := 0; i+1 < len(fields); i += 2 {
			current[fields[i].(string)] = fields[i+1].(string)
		}
		if run, err = decodeRun(id, current); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fields...)
			if r.ttl > 0 {
				pipe.Expire(ctx, key, r.ttl)
			}
			return nil
		})
		return err
	}

	for i := 0; i < 3; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return Run{}, err
		}
		return run, nil
	}
	return Run{}, redis.TxFailedErr
}

func decodeRun(id uuid.UUID, fields map[string]string) (Run, error) {
	run := Run{
		ID:         id,
		Language:   fields["language"],
		SourceCode: fields["source_code"],
		Stdin:      fields["stdin"],
		Status:     RunStatus(fields["status"]),
	}
	if out, ok := fields["output"]; ok {
		run.Output = &out
	}
	var err error
	if run.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"]); err != nil {
		return Run{}, fmt.Errorf("decode run %s created_at: %w", id, err)
	}
	if run.UpdatedAt, err = time.Parse(time.RFC3339Nano, fields["updated_at"]); err != nil {
		return Run{}, fmt.Errorf("decode run %s updated_at: %w", id, err)
	}
	return run, nil
}
