package queue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/action"
	"github.com/redis/go-redis/v9"
	waLog "go.mau.fi/whatsmeow/util/log"
)

type redisQueue struct {
	client *redis.Client
	name   string
	log    waLog.Logger
}

// NewRedis backs the queue by a Redis list: RPUSH appends, LPOP takes the head.
func NewRedis(client *redis.Client, name string, log waLog.Logger) Queue {
	if log == nil {
		log = waLog.Noop
	}
	return &redisQueue{client: client, name: name, log: log}
}

// Connect parses the URL, applies the TLS override and pings the server.
func Connect(ctx context.Context, redisURL string, tlsInsecure bool) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if tlsInsecure {
		if opt.TLSConfig != nil {
			opt.TLSConfig = opt.TLSConfig.Clone()
			opt.TLSConfig.InsecureSkipVerify = true
		} else {
			opt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
		}
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (q *redisQueue) Name() string { return q.name }

func (q *redisQueue) Push(ctx context.Context, rec action.Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, q.name, payload).Err(); err != nil {
		return fmt.Errorf("push %s: %w", q.name, err)
	}
	return nil
}

func (q *redisQueue) DrainAll(ctx context.Context) ([]action.Record, error) {
	raw, err := q.client.LRange(ctx, q.name, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", q.name, err)
	}
	out := make([]action.Record, 0, len(raw))
	for _, item := range raw {
		var rec action.Record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			q.log.Warnf("queue %s: skipping undecodable entry: %v", q.name, err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (q *redisQueue) PopOne(ctx context.Context) (*action.Record, error) {
	raw, err := q.client.LPop(ctx, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop %s: %w", q.name, err)
	}
	var rec action.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		// The entry is already gone from the list; there is nothing to give back.
		return nil, fmt.Errorf("decode entry from %s: %w", q.name, err)
	}
	return &rec, nil
}
