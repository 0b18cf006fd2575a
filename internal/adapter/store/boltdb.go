package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"go.etcd.io/bbolt"

	"docrag/internal/domain"
	"docrag/internal/port"
)

// ErrNotFound is returned for unknown document or chunk IDs.
var ErrNotFound = port.ErrNotFound

var (
	bucketDocs      = []byte("docs")
	bucketTexts     = []byte("texts")
	bucketChunks    = []byte("chunks")
	bucketStats     = []byte("stats")
	bucketDocChunks = []byte("doc_chunks")
)

type BoltStore struct {
	db *bbolt.DB
}

var _ port.DocumentStore = (*BoltStore)(nil)

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{bucketDocs, bucketTexts, bucketChunks, bucketStats, bucketDocChunks}
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) DB() *bbolt.DB {
	return s.db
}

type docMeta struct {
	Name       string `json:"name"`
	MimeType   string `json:"mime_type"`
	Size       int64  `json:"size"`
	Checksum   string `json:"checksum"`
	ChunkCount int    `json:"chunk_count"`
	IngestedAt int64  `json:"ingested_at"`
}

type chunkMeta struct {
	DocID   string `json:"doc_id"`
	Index   int    `json:"index"`
	Source  string `json:"source"`
	Content string `json:"content"`
}

func encodeDoc(doc domain.Document) ([]byte, error) {
	return json.Marshal(docMeta{
		Name:       doc.Name,
		MimeType:   doc.MimeType,
		Size:       doc.Size,
		Checksum:   doc.Checksum,
		ChunkCount: doc.ChunkCount,
		IngestedAt: doc.IngestedAt.UnixNano(),
	})
}

func decodeDoc(id string, data []byte) (domain.Document, error) {
	var meta docMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return domain.Document{}, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	return domain.Document{
		ID:         id,
		Name:       meta.Name,
		MimeType:   meta.MimeType,
		Size:       meta.Size,
		Checksum:   meta.Checksum,
		ChunkCount: meta.ChunkCount,
		IngestedAt: time.Unix(0, meta.IngestedAt).UTC(),
	}, nil
}

func decodeChunk(id string, data []byte) (domain.Chunk, error) {
	var meta chunkMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return domain.Chunk{}, fmt.Errorf("failed to decode chunk %s: %w", id, err)
	}
	return domain.Chunk{
		ID:      id,
		DocID:   meta.DocID,
		Index:   meta.Index,
		Source:  meta.Source,
		Content: meta.Content,
	}, nil
}

func (s *BoltStore) PutDoc(doc domain.Document) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := encodeDoc(doc)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketDocs).Put([]byte(doc.ID), data)
	})
}

func (s *BoltStore) GetDoc(id string) (domain.Document, error) {
	var doc domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocs).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: document %s", ErrNotFound, id)
		}
		var err error
		doc, err = decodeDoc(id, data)
		return err
	})
	return doc, err
}

// DeleteDoc removes the document with its text and chunks.
func (s *BoltStore) DeleteDoc(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketDocs).Get([]byte(id)) == nil {
			return fmt.Errorf("%w: document %s", ErrNotFound, id)
		}
		if err := deleteChunks(tx, id); err != nil {
			return err
		}
		if err := tx.Bucket(bucketTexts).Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(bucketDocs).Delete([]byte(id))
	})
}

func (s *BoltStore) ListDocs() ([]domain.Document, error) {
	var docs []domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocs).ForEach(func(k, v []byte) error {
			doc, err := decodeDoc(string(k), v)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
			return nil
		})
	})
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Name != docs[j].Name {
			return docs[i].Name < docs[j].Name
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, err
}

func (s *BoltStore) FindDocByName(name string) (domain.Document, bool, error) {
	var (
		found domain.Document
		ok    bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketDocs).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var meta docMeta
			if err := json.Unmarshal(v, &meta); err != nil || meta.Name != name {
				continue
			}
			doc, err := decodeDoc(string(k), v)
			if err != nil {
				return err
			}
			found, ok = doc, true
			return nil
		}
		return nil
	})
	return found, ok, err
}

func (s *BoltStore) PutText(docID, text string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTexts).Put([]byte(docID), []byte(text))
	})
}

func (s *BoltStore) GetText(docID string) (string, error) {
	var text string
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketTexts).Get([]byte(docID))
		if data == nil {
			return fmt.Errorf("%w: text of document %s", ErrNotFound, docID)
		}
		text = string(data)
		return nil
	})
	return text, err
}

func (s *BoltStore) PutChunks(docID string, chunks []domain.Chunk) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := deleteChunks(tx, docID); err != nil {
			return err
		}

		chunkBucket := tx.Bucket(bucketChunks)
		chunkIDs := make([]string, 0, len(chunks))
		for _, chunk := range chunks {
			data, err := json.Marshal(chunkMeta{
				DocID:   docID,
				Index:   chunk.Index,
				Source:  chunk.Source,
				Content: chunk.Content,
			})
			if err != nil {
				return err
			}
			if err := chunkBucket.Put([]byte(chunk.ID), data); err != nil {
				return err
			}
			chunkIDs = append(chunkIDs, chunk.ID)
		}

		idsData, err := json.Marshal(chunkIDs)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketDocChunks).Put([]byte(docID), idsData)
	})
}

func (s *BoltStore) GetChunk(id string) (domain.Chunk, error) {
	var chunk domain.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketChunks).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: chunk %s", ErrNotFound, id)
		}
		var err error
		chunk, err = decodeChunk(id, data)
		return err
	})
	return chunk, err
}

func (s *BoltStore) GetChunksByDoc(docID string) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocChunks).Get([]byte(docID))
		if data == nil {
			return nil
		}
		var chunkIDs []string
		if err := json.Unmarshal(data, &chunkIDs); err != nil {
			return err
		}
		chunkBucket := tx.Bucket(bucketChunks)
		for _, id := range chunkIDs {
			data := chunkBucket.Get([]byte(id))
			if data == nil {
				continue
			}
			chunk, err := decodeChunk(id, data)
			if err != nil {
				return err
			}
			chunks = append(chunks, chunk)
		}
		return nil
	})
	return chunks, err
}

func (s *BoltStore) DeleteChunksByDoc(docID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return deleteChunks(tx, docID)
	})
}

func deleteChunks(tx *bbolt.Tx, docID string) error {
	docChunks := tx.Bucket(bucketDocChunks)
	data := docChunks.Get([]byte(docID))
	if data == nil {
		return nil
	}
	var chunkIDs []string
	if err := json.Unmarshal(data, &chunkIDs); err != nil {
		return err
	}
	chunkBucket := tx.Bucket(bucketChunks)
	for _, id := range chunkIDs {
		if err := chunkBucket.Delete([]byte(id)); err != nil {
			return err
		}
	}
	return docChunks.Delete([]byte(docID))
}

// GetStats scans the chunk bucket; it is meant for reporting, not hot paths.
func (s *BoltStore) GetStats() (domain.Stats, error) {
	var (
		stats      domain.Stats
		totalChars int
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		stats.TotalDocs = tx.Bucket(bucketDocs).Stats().KeyN
		return tx.Bucket(bucketChunks).ForEach(func(k, v []byte) error {
			var meta chunkMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return err
			}
			stats.TotalChunks++
			totalChars += utf8.RuneCountInString(meta.Content)
			return nil
		})
	})
	if stats.TotalChunks > 0 {
		stats.AvgChunkLen = float64(totalChars) / float64(stats.TotalChunks)
	}
	return stats, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
