package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/totemic/internal/config"
	"github.com/lazypower/totemic/internal/engine"
	"github.com/lazypower/totemic/internal/events"
	"github.com/lazypower/totemic/internal/store"
)

// openStore opens the configured backend and returns it with a short
// description for startup logs.
func openStore(ctx context.Context, cfg config.Config) (store.Store, string, error) {
	switch strings.ToLower(cfg.Store.Driver) {
	case "memory":
		return store.NewMemory(), "memory", nil
	case "sqlite", "":
		path := cfg.Store.SQLitePath
		if path == "" {
			var err error
			path, err = store.DefaultDBPath()
			if err != nil {
				return nil, "", fmt.Errorf("resolve db path: %w", err)
			}
		}
		db, err := store.Open(path)
		if err != nil {
			return nil, "", fmt.Errorf("open database: %w", err)
		}
		return db, "sqlite " + path, nil
	case "postgres":
		pg, err := store.OpenPostgres(ctx, cfg.Store.PostgresURL)
		if err != nil {
			return nil, "", err
		}
		return pg, "postgres", nil
	case "redis":
		rs, err := store.OpenRedis(ctx, cfg.Store.RedisAddr, cfg.Store.RedisPrefix)
		if err != nil {
			return nil, "", err
		}
		return rs, "redis " + cfg.Store.RedisAddr, nil
	}
	return nil, "", fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func newPublisher(cfg config.Config) (events.Publisher, error) {
	switch strings.ToLower(cfg.Events.Driver) {
	case "kafka":
		return events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: cfg.Events.Brokers,
			Topic:   cfg.Events.Topic,
		})
	default:
		return events.NewNopPublisher(), nil
	}
}

// newCoordinator builds a coordinator from config.
func newCoordinator(cfg config.Config, st store.Store, log *zap.Logger, pub events.Publisher) (*engine.Coordinator, error) {
	policy, err := engine.ParsePolicy(cfg.Policy.Subjects, cfg.Policy.Anchor, cfg.Policy.Relike)
	if err != nil {
		return nil, err
	}
	relations, err := engine.ParseRelationsMode(cfg.Engine.Relations)
	if err != nil {
		return nil, err
	}
	model, err := store.ParseDecayModel(cfg.Engine.DefaultDecayModel)
	if err != nil {
		return nil, err
	}

	return engine.NewCoordinator(st,
		engine.WithLogger(log),
		engine.WithPolicy(policy),
		engine.WithRelations(relations),
		engine.WithClusterOptions(engine.ClusterOptions{
			Threshold:      cfg.Engine.SimilarityThreshold,
			MinTokenLength: cfg.Engine.MinTokenLength,
		}),
		engine.WithPublisher(pub),
		engine.WithDefaultDecayModel(model),
		engine.WithMaxAttempts(cfg.Engine.MaxAttempts),
		engine.WithBackoff(
			time.Duration(cfg.Engine.BackoffBaseMs)*time.Millisecond,
			time.Duration(cfg.Engine.BackoffMaxMs)*time.Millisecond,
		),
	), nil
}

// session is everything a one-shot CLI command needs.
type session struct {
	cfg   config.Config
	log   *zap.Logger
	store store.Store
	coord *engine.Coordinator
}

// openSession loads config and opens the store. One-shot commands never
// publish events and recompute relations inline.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg)

	st, _, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if mode, _ := engine.ParseRelationsMode(cfg.Engine.Relations); mode == engine.RelationsDeferred {
		cfg.Engine.Relations = string(engine.RelationsSync)
	}
	coord, err := newCoordinator(cfg, st, log, events.NewNopPublisher())
	if err != nil {
		st.Close()
		return nil, err
	}
	return &session{cfg: cfg, log: log, store: st, coord: coord}, nil
}

func (s *session) Close() {
	s.store.Close()
	s.log.Sync()
}
