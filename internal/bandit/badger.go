package bandit

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"hfbpo/pkg/errors"
	"hfbpo/pkg/logger"
)

// Arm records live under a single-byte prefix so other record types can
// share the database later.
const prefixArm = byte(0x01)

// BadgerStore is an embedded durable arm registry. Updates run inside
// Badger transactions; conflicting same-key updates retry until they
// serialize, so no reward observation is ever lost.
type BadgerStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// BadgerStoreOptions configure the embedded registry.
type BadgerStoreOptions struct {
	Dir        string
	InMemory   bool // for tests; data is lost on close
	SyncWrites bool
}

// NewBadgerStore opens the registry database.
func NewBadgerStore(opts BadgerStoreOptions) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.Dir).WithLogger(nil)
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, errors.NewStorageFailed("badger", "open", err)
	}

	return &BadgerStore{
		db:     db,
		logger: logger.Get(),
	}, nil
}

func armKey(key string) []byte {
	return append([]byte{prefixArm}, key...)
}

// Get returns the arm for key without creating it.
func (s *BadgerStore) Get(_ context.Context, key string) (Arm, bool, error) {
	var arm Arm
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(armKey(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &arm)
		})
	})
	if err != nil {
		return Arm{}, false, errors.NewStorageFailed("badger", "get", err)
	}
	return arm, found, nil
}

// GetOrCreate returns the arm for key, creating Beta(1, 1) if unseen.
func (s *BadgerStore) GetOrCreate(ctx context.Context, key string) (Arm, error) {
	var arm Arm
	err := s.withConflictRetry(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(armKey(key))
		if err == badger.ErrKeyNotFound {
			arm = NewArm(key)
			data, err := json.Marshal(arm)
			if err != nil {
				return err
			}
			return txn.Set(armKey(key), data)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &arm)
		})
	})
	if err != nil {
		return Arm{}, errors.NewStorageFailed("badger", "get_or_create", err)
	}
	return arm, nil
}

// Update folds the reward into the arm, creating it first when unseen.
func (s *BadgerStore) Update(ctx context.Context, key string, reward float64) (Arm, error) {
	if err := ValidateReward(key, reward); err != nil {
		return Arm{}, err
	}

	var arm Arm
	err := s.withConflictRetry(ctx, func(txn *badger.Txn) error {
		arm = NewArm(key)
		item, err := txn.Get(armKey(key))
		if err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		if err == nil {
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &arm)
			}); err != nil {
				return err
			}
		}

		arm = arm.applyReward(reward, nowUTC())
		data, err := json.Marshal(arm)
		if err != nil {
			return err
		}
		return txn.Set(armKey(key), data)
	})
	if err != nil {
		return Arm{}, errors.NewStorageFailed("badger", "update", err)
	}
	return arm, nil
}

// withConflictRetry runs fn in a read-write transaction, retrying commit
// conflicts until the context is cancelled.
func (s *BadgerStore) withConflictRetry(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for {
		err := s.db.Update(fn)
		if err != badger.ErrConflict {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug("Retrying conflicting arm transaction")
	}
}

// Snapshot returns the top arms by posterior mean.
func (s *BadgerStore) Snapshot(_ context.Context, topN int) ([]ArmStat, error) {
	stats := make([]ArmStat, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{prefixArm}
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var arm Arm
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &arm)
			}); err != nil {
				return err
			}
			stats = append(stats, newArmStat(arm))
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewStorageFailed("badger", "snapshot", err)
	}
	return topStats(stats, topN), nil
}

// Count returns the number of arms.
func (s *BadgerStore) Count(_ context.Context) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{prefixArm}
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, errors.NewStorageFailed("badger", "count", err)
	}
	return count, nil
}

// Keys returns all combination keys sorted ascending.
func (s *BadgerStore) Keys(_ context.Context) ([]string, error) {
	keys := make([]string, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{prefixArm}
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().Key()[1:]))
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewStorageFailed("badger", "keys", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

var _ Registry = (*BadgerStore)(nil)
