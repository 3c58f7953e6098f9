// Package redis is a storage.Store backed by Redis. Updates use WATCH/MULTI/EXEC so that
// concurrent writers from separate processes never interleave a transaction's writes.
package redis

import (
	"context"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/autom8ter/pathfinder/storage"
)

// Options configures a redis store.
type Options struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key written by the store.
	Prefix string
	// MaxRetries bounds optimistic transaction retries. Defaults to 10.
	MaxRetries int
	// DialTimeout defaults to 5 seconds.
	DialTimeout time.Duration
	Logger      *zap.Logger
}

type store struct {
	client     *goredis.Client
	prefix     string
	maxRetries int
	logger     *zap.Logger
}

// Open connects to redis and verifies the connection with a PING.
func Open(ctx context.Context, opts Options) (storage.Store, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis: address cannot be empty")
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "redis: failed to connect")
	}
	return New(client, opts), nil
}

// New wraps an existing client. Only Prefix, MaxRetries and Logger are read from opts.
func New(client *goredis.Client, opts Options) storage.Store {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 10
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &store{
		client:     client,
		prefix:     opts.Prefix,
		maxRetries: opts.MaxRetries,
		logger:     opts.Logger,
	}
}

func (s *store) View(ctx context.Context, fn func(r storage.Reader) error) error {
	return fn(&reader{ctx: ctx, store: s})
}

// Update may run fn more than once when another client modifies a key fn has read.
func (s *store) Update(ctx context.Context, fn func(w storage.Writer) error) error {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
			w := &writer{ctx: ctx, store: s, tx: tx, staged: map[string][]byte{}}
			if err := fn(w); err != nil {
				return err
			}
			if len(w.staged) == 0 {
				return nil
			}
			_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				for _, k := range w.order {
					pipe.Set(ctx, k, w.staged[k], 0)
				}
				return nil
			})
			return err
		})
		if err != goredis.TxFailedErr {
			return err
		}
		s.logger.Debug("retrying watched transaction", zap.Int("attempt", attempt+1))
	}
	return errors.Wrap(goredis.TxFailedErr, "redis: update retries exhausted")
}

func (s *store) Close() error {
	return s.client.Close()
}

func (s *store) key(k []byte) string {
	return s.prefix + string(k)
}

type reader struct {
	ctx   context.Context
	store *store
}

func (r *reader) Get(key []byte) ([]byte, error) {
	val, err := r.store.client.Get(r.ctx, r.store.key(key)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "redis: get")
	}
	return val, nil
}

type writer struct {
	ctx    context.Context
	store  *store
	tx     *goredis.Tx
	staged map[string][]byte
	order  []string
}

func (w *writer) Get(key []byte) ([]byte, error) {
	k := w.store.key(key)
	if v, ok := w.staged[k]; ok {
		out := make([]byte, len(v))
		copy(out, v)
		return out, nil
	}
	if err := w.tx.Watch(w.ctx, k).Err(); err != nil {
		return nil, errors.Wrap(err, "redis: watch")
	}
	val, err := w.tx.Get(w.ctx, k).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "redis: get")
	}
	return val, nil
}

func (w *writer) Set(key, value []byte) error {
	k := w.store.key(key)
	if _, ok := w.staged[k]; !ok {
		w.order = append(w.order, k)
	}
	v := make([]byte, len(value))
	copy(v, value)
	w.staged[k] = v
	return nil
}
