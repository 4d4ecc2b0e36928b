package mirror

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/dwarvesf/secret-bridge/internal/consts"
	"github.com/dwarvesf/secret-bridge/internal/model"
	"github.com/dwarvesf/secret-bridge/internal/utils/config"
	"github.com/dwarvesf/secret-bridge/internal/utils/logger"
)

var (
	// mirrorBucketKey holds the single operations entry.
	mirrorBucketKey = []byte("mirror")

	// operationsKey maps to a JSON array of operation summaries.
	operationsKey = []byte(consts.MIRROR_OPERATIONS_KEY)
)

type boltMirror struct {
	db     *bolt.DB
	logger *logger.Logger
}

func New(appConfig *config.AppConfig, logger *logger.Logger) (IMirror, error) {
	return Open(appConfig.Mirror.Path, logger)
}

func Open(path string, logger *logger.Logger) (IMirror, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, errors.Wrap(err, "create mirror dir")
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open mirror %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(mirrorBucketKey)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create mirror bucket")
	}

	return &boltMirror{db: db, logger: logger}, nil
}

// Save inserts or replaces the summary of op. Unreadable content is replaced.
func (m *boltMirror) Save(op *model.Operation) error {
	if op == nil || op.ID == "" {
		return errors.New("operation without id")
	}
	snapshot := *op
	entry := model.NewOperationSummary(&snapshot)

	return m.db.Update(func(tx *bolt.Tx) error {
		entries := m.read(tx)

		replaced := false
		for i := range entries {
			if entries[i].ID == entry.ID {
				entries[i] = entry
				replaced = true
				break
			}
		}
		if !replaced {
			entries = append(entries, entry)
		}

		return m.write(tx, entries)
	})
}

func (m *boltMirror) Remove(id string) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		entries := m.read(tx)

		kept := entries[:0]
		for _, e := range entries {
			if e.ID != id {
				kept = append(kept, e)
			}
		}
		if len(kept) == len(entries) {
			return nil
		}
		return m.write(tx, kept)
	})
}

func (m *boltMirror) Get(id string) (model.OperationSummary, bool) {
	for _, e := range m.List() {
		if e.ID == id {
			return e, true
		}
	}
	return model.OperationSummary{}, false
}

func (m *boltMirror) List() []model.OperationSummary {
	var entries []model.OperationSummary
	err := m.db.View(func(tx *bolt.Tx) error {
		entries = m.read(tx)
		return nil
	})
	if err != nil {
		m.logger.Error("[Mirror][List]", map[string]string{"error": err.Error()})
		return []model.OperationSummary{}
	}
	return entries
}

// ListInFlight returns the non terminal operations, oldest first.
func (m *boltMirror) ListInFlight() []model.Operation {
	ops := []model.Operation{}
	for _, e := range m.List() {
		if e.Operation == nil || e.Operation.ID == "" || e.Operation.Status.IsTerminal() {
			continue
		}
		ops = append(ops, *e.Operation)
	}

	sort.SliceStable(ops, func(i, j int) bool {
		return ops[i].CreatedAt.Before(ops[j].CreatedAt)
	})
	return ops
}

func (m *boltMirror) Close() error {
	return m.db.Close()
}

// read never fails: missing or corrupt content reads as an empty history.
func (m *boltMirror) read(tx *bolt.Tx) []model.OperationSummary {
	bucket := tx.Bucket(mirrorBucketKey)
	if bucket == nil {
		return []model.OperationSummary{}
	}
	raw := bucket.Get(operationsKey)
	if raw == nil {
		return []model.OperationSummary{}
	}

	var entries []model.OperationSummary
	if err := json.Unmarshal(raw, &entries); err != nil {
		m.logger.Warn("[Mirror][read] discarding unreadable history", map[string]string{"error": err.Error()})
		return []model.OperationSummary{}
	}
	return entries
}

func (m *boltMirror) write(tx *bolt.Tx, entries []model.OperationSummary) error {
	bucket, err := tx.CreateBucketIfNotExists(mirrorBucketKey)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return errors.Wrap(err, "encode history")
	}
	return bucket.Put(operationsKey, raw)
}
