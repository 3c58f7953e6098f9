// Package badger is a storage.Store on top of BadgerDB transactions.
package badger

import (
	"context"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/autom8ter/pathfinder/storage"
)

// maxConflictRetries bounds how often an update is retried after a write conflict.
const maxConflictRetries = 5

// Options configures a badger store.
type Options struct {
	// Path is the data directory. It is ignored when InMemory is set.
	Path string
	// InMemory keeps all data in memory. Nothing is written to disk.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// Logger receives badger's internal logs. Defaults to a no-op logger.
	Logger *zap.Logger
}

type store struct {
	db     *badgerdb.DB
	logger *zap.Logger
}

// Open opens (or creates) a badger database.
func Open(opts Options) (storage.Store, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	var bopts badgerdb.Options
	if opts.InMemory {
		bopts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, errors.New("badger: empty data path")
		}
		bopts = badgerdb.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithSyncWrites(opts.SyncWrites)
	bopts.Logger = &badgerLogger{logger: opts.Logger.Named("badger").Sugar()}
	db, err := badgerdb.Open(bopts)
	if err != nil {
		return nil, errors.Wrap(err, "badger: failed to open database")
	}
	opts.Logger.Info("opened badger store",
		zap.String("path", opts.Path),
		zap.Bool("in_memory", opts.InMemory),
	)
	return &store{db: db, logger: opts.Logger}, nil
}

func (s *store) View(ctx context.Context, fn func(r storage.Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badgerdb.Txn) error {
		return fn(&transaction{txn: txn})
	})
}

func (s *store) Update(ctx context.Context, fn func(w storage.Writer) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err = s.db.Update(func(txn *badgerdb.Txn) error {
			return fn(&transaction{txn: txn, writable: true})
		})
		if err != badgerdb.ErrConflict {
			return err
		}
		s.logger.Debug("retrying conflicted transaction", zap.Int("attempt", attempt+1))
	}
	return errors.Wrap(err, "badger: update retries exhausted")
}

func (s *store) Close() error {
	return s.db.Close()
}

type transaction struct {
	txn      *badgerdb.Txn
	writable bool
}

func (t *transaction) Get(key []byte) ([]byte, error) {
	item, err := t.txn.Get(key)
	if err != nil {
		if err == badgerdb.ErrKeyNotFound {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "badger: get")
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, errors.Wrap(err, "badger: copy value")
	}
	return val, nil
}

func (t *transaction) Set(key, value []byte) error {
	if !t.writable {
		return storage.ErrReadOnly
	}
	return errors.Wrap(t.txn.Set(key, value), "badger: set")
}

// badgerLogger adapts zap to badger's Logger interface.
type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Infof(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}
