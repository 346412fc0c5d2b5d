package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Redis is a Store that keeps each document in a hash {body, version} and
// commits with WATCH/MULTI, so a concurrent writer aborts the EXEC.
type Redis struct {
	rdb    *goredis.Client
	prefix string
}

// OpenRedis connects to the server at addr. Keys are namespaced by prefix.
func OpenRedis(ctx context.Context, addr, prefix string) (*Redis, error) {
	if addr == "" {
		return nil, errors.New("redis address required")
	}
	if prefix == "" {
		prefix = "totemic"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Redis{rdb: rdb, prefix: prefix}, nil
}

func (r *Redis) key(id string) string {
	return r.prefix + ":doc:" + id
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, id string) (*Document, error) {
	doc, _, err := r.load(ctx, id)
	return doc, err
}

// RunTransaction implements Store.
func (r *Redis) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return runTransaction(ctx, r, fn)
}

// PingContext checks the connection.
func (r *Redis) PingContext(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

func (r *Redis) load(ctx context.Context, id string) (*Document, int64, error) {
	vals, err := r.rdb.HMGet(ctx, r.key(id), "body", "version").Result()
	if err != nil {
		return nil, 0, fmt.Errorf("load document: %w", err)
	}
	body, ok := vals[0].(string)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var version int64
	if s, ok := vals[1].(string); ok {
		version, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("parse version of %s: %w", id, err)
		}
	}

	doc, err := decode(id, []byte(body), version)
	if err != nil {
		return nil, 0, err
	}
	return doc, version, nil
}

func (r *Redis) commit(ctx context.Context, writes []pendingWrite, now time.Time) error {
	keys := make([]string, len(writes))
	for i, w := range writes {
		keys[i] = r.key(w.doc.ID)
	}

	err := r.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		for i, w := range writes {
			current, err := tx.HGet(ctx, keys[i], "version").Int64()
			if errors.Is(err, goredis.Nil) {
				current = 0
			} else if err != nil {
				return fmt.Errorf("read version: %w", err)
			}
			if current != w.version {
				return fmt.Errorf("%w: %s at version %d, expected %d", ErrConflict, w.doc.ID, current, w.version)
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			for i, w := range writes {
				doc, body, err := encode(w, now)
				if err != nil {
					return err
				}
				pipe.HSet(ctx, keys[i], "body", body, "version", doc.Version)
			}
			return nil
		})
		return err
	}, keys...)

	if errors.Is(err, goredis.TxFailedErr) {
		return fmt.Errorf("%w: watched key modified", ErrConflict)
	}
	return err
}
