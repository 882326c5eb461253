package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/joeott/docpipeline/internal/models"
	"github.com/joeott/docpipeline/internal/store"
	"github.com/joeott/docpipeline/pkg/logger"
)

// Store is a BadgerDB-backed implementation of store.Store. Rows are JSON
// values under typed key prefixes; uniqueness constraints are enforced
// inside Badger transactions, which gives per-row atomicity and rejects
// duplicate inserts even under concurrent triggers.
type Store struct {
	db     *badger.DB
	logger logger.Logger
}

var _ store.Store = (*Store)(nil)

// badgerLoggerAdapter routes Badger's internal logging through our logger.
type badgerLoggerAdapter struct {
	logger logger.Logger
}

func (a *badgerLoggerAdapter) Errorf(msg string, args ...interface{}) {
	a.logger.Error(fmt.Sprintf(msg, args...))
}
func (a *badgerLoggerAdapter) Warningf(msg string, args ...interface{}) {
	a.logger.Warn(fmt.Sprintf(msg, args...))
}
func (a *badgerLoggerAdapter) Infof(msg string, args ...interface{}) {
	a.logger.Debug(fmt.Sprintf(msg, args...))
}
func (a *badgerLoggerAdapter) Debugf(msg string, args ...interface{}) {
	a.logger.Debug(fmt.Sprintf(msg, args...))
}

// Open opens (or creates) a store at path. An empty path with inMemory set
// opens an ephemeral store, which is what the tests use.
func Open(path string, inMemory bool, log logger.Logger) (*Store, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = &badgerLoggerAdapter{logger: log}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &Store{db: db, logger: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Key layout. Chunk and mention keys embed a zero-padded ordering component
// so prefix iteration returns rows in index / first-seen order.
func docKey(id uuid.UUID) []byte {
	return []byte("doc:" + id.String())
}

func taskKey(docID uuid.UUID, stage models.Stage) []byte {
	return []byte(fmt.Sprintf("task:%s:%s", docID, stage))
}

func chunkKey(docID uuid.UUID, index int) []byte {
	return []byte(fmt.Sprintf("chunk:%s:%06d", docID, index))
}

func mentionKey(docID uuid.UUID, ordinal int) []byte {
	return []byte(fmt.Sprintf("mention:%s:%08d", docID, ordinal))
}

func entityKey(docID, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("entity:%s:%s", docID, id))
}

func relKey(docID, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("rel:%s:%s", docID, id))
}

func (s *Store) CreateDocument(ctx context.Context, doc *models.Document) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := docKey(doc.ID)
		if _, err := txn.Get(key); err == nil {
			return store.ErrDuplicate
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return putJSON(txn, key, doc)
	})
}

func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, docKey(id), &doc)
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *Store) UpdateDocument(ctx context.Context, doc *models.Document) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var current models.Document
		if err := getJSON(txn, docKey(doc.ID), &current); err != nil {
			return err
		}
		if current.Version != doc.Version {
			return store.ErrVersionConflict
		}
		doc.Version++
		doc.UpdatedAt = time.Now().UTC()
		return putJSON(txn, docKey(doc.ID), doc)
	})
}

func (s *Store) UpsertStageTask(ctx context.Context, rec *models.StageTaskRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	return s.db.Update(func(txn *badger.Txn) error {
		return putJSON(txn, taskKey(rec.DocumentID, rec.Stage), rec)
	})
}

func (s *Store) GetStageTask(ctx context.Context, docID uuid.UUID, stage models.Stage) (*models.StageTaskRecord, error) {
	var rec models.StageTaskRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, taskKey(docID, stage), &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) ListStageTasks(ctx context.Context, docID uuid.UUID) ([]models.StageTaskRecord, error) {
	// Returned in pipeline order, not key order.
	var out []models.StageTaskRecord
	err := s.db.View(func(txn *badger.Txn) error {
		for _, stage := range models.Stages() {
			var rec models.StageTaskRecord
			err := getJSON(txn, taskKey(docID, stage), &rec)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) DeleteStageTask(ctx context.Context, docID uuid.UUID, stage models.Stage) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(taskKey(docID, stage))
	})
}

func (s *Store) InsertChunks(ctx context.Context, chunks []models.Chunk) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for i := range chunks {
			key := chunkKey(chunks[i].DocumentID, chunks[i].Index)
			if _, err := txn.Get(key); err == nil {
				return fmt.Errorf("chunk index %d: %w", chunks[i].Index, store.ErrDuplicate)
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := putJSON(txn, key, &chunks[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ListChunks(ctx context.Context, docID uuid.UUID) ([]models.Chunk, error) {
	var out []models.Chunk
	err := s.listPrefix(fmt.Sprintf("chunk:%s:", docID), func(val []byte) error {
		var c models.Chunk
		if err := json.Unmarshal(val, &c); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

func (s *Store) DeleteChunks(ctx context.Context, docID uuid.UUID) error {
	return s.deletePrefix(fmt.Sprintf("chunk:%s:", docID))
}

func (s *Store) InsertMentions(ctx context.Context, mentions []models.EntityMention) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for i := range mentions {
			key := mentionKey(mentions[i].DocumentID, mentions[i].Ordinal)
			if _, err := txn.Get(key); err == nil {
				return fmt.Errorf("mention ordinal %d: %w", mentions[i].Ordinal, store.ErrDuplicate)
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := putJSON(txn, key, &mentions[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ListMentions(ctx context.Context, docID uuid.UUID) ([]models.EntityMention, error) {
	var out []models.EntityMention
	err := s.listPrefix(fmt.Sprintf("mention:%s:", docID), func(val []byte) error {
		var m models.EntityMention
		if err := json.Unmarshal(val, &m); err != nil {
			return err
		}
		out = append(out, m)
		return nil
	})
	return out, err
}

func (s *Store) DeleteMentions(ctx context.Context, docID uuid.UUID) error {
	return s.deletePrefix(fmt.Sprintf("mention:%s:", docID))
}

func (s *Store) AssignCanonicals(ctx context.Context, docID uuid.UUID, assignment map[uuid.UUID]uuid.UUID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("mention:%s:", docID))
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		type update struct {
			key []byte
			val []byte
		}
		var updates []update

		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				it.Close()
				return err
			}
			var m models.EntityMention
			if err := json.Unmarshal(val, &m); err != nil {
				it.Close()
				return err
			}
			if canonicalID, ok := assignment[m.ID]; ok {
				id := canonicalID
				m.CanonicalID = &id
			} else {
				m.CanonicalID = nil
			}
			buf, err := json.Marshal(&m)
			if err != nil {
				it.Close()
				return err
			}
			updates = append(updates, update{key: item.KeyCopy(nil), val: buf})
		}
		it.Close()

		for _, u := range updates {
			if err := txn.Set(u.key, u.val); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) InsertEntities(ctx context.Context, entities []models.CanonicalEntity) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for i := range entities {
			if err := putJSON(txn, entityKey(entities[i].DocumentID, entities[i].ID), &entities[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ListEntities(ctx context.Context, docID uuid.UUID) ([]models.CanonicalEntity, error) {
	var out []models.CanonicalEntity
	err := s.listPrefix(fmt.Sprintf("entity:%s:", docID), func(val []byte) error {
		var e models.CanonicalEntity
		if err := json.Unmarshal(val, &e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

func (s *Store) DeleteEntities(ctx context.Context, docID uuid.UUID) error {
	return s.deletePrefix(fmt.Sprintf("entity:%s:", docID))
}

func (s *Store) InsertRelationships(ctx context.Context, stubs []models.RelationshipStub) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for i := range stubs {
			if err := putJSON(txn, relKey(stubs[i].DocumentID, stubs[i].ID), &stubs[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ListRelationships(ctx context.Context, docID uuid.UUID) ([]models.RelationshipStub, error) {
	var out []models.RelationshipStub
	err := s.listPrefix(fmt.Sprintf("rel:%s:", docID), func(val []byte) error {
		var r models.RelationshipStub
		if err := json.Unmarshal(val, &r); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func (s *Store) DeleteRelationships(ctx context.Context, docID uuid.UUID) error {
	return s.deletePrefix(fmt.Sprintf("rel:%s:", docID))
}

func (s *Store) listPrefix(prefix string, fn func(val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(val); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) deletePrefix(prefix string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false

		var keys [][]byte
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func putJSON(txn *badger.Txn, key []byte, v interface{}) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}
	return txn.Set(key, buf)
}

func getJSON(txn *badger.Txn, key []byte, v interface{}) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(val, v)
}
