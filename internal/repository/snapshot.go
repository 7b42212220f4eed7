package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/debemdeboas/folio/internal/db"
	"github.com/debemdeboas/folio/internal/model"
	"github.com/debemdeboas/folio/internal/util"
)

type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

type ZstdCompressor struct{}

func (z ZstdCompressor) Compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, nil), nil
}

func (z ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	return decoder.DecodeAll(data, nil)
}

// SnapshotStore keeps the last post listing in SQLite, one compressed JSON
// row per post.
type SnapshotStore struct {
	db         db.Db
	compressor Compressor
}

func NewSnapshotStore(d db.Db) *SnapshotStore {
	return &SnapshotStore{db: d, compressor: ZstdCompressor{}}
}

// Save replaces the stored snapshot with posts, keeping their order.
func (s *SnapshotStore) Save(ctx context.Context, posts []model.Post) error {
	tx, err := s.db.Get().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM post_snapshots`); err != nil {
		return fmt.Errorf("error clearing snapshot: %w", err)
	}

	for i := range posts {
		p := &posts[i]
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("error encoding post %s: %w", p.Slug, err)
		}
		compressed, err := s.compressor.Compress(data)
		if err != nil {
			return fmt.Errorf("error compressing post %s: %w", p.Slug, err)
		}
		hash := p.MDContentHash
		if hash == "" {
			hash = util.ContentHashString(p.Content)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO post_snapshots (slug, position, content, md_content_hash) VALUES (?, ?, ?, ?)`,
			p.Slug, i, compressed, hash,
		)
		if err != nil {
			return fmt.Errorf("error saving post %s: %w", p.Slug, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing snapshot: %w", err)
	}
	repoLogger.Debug().Int("posts", len(posts)).Msg("Post snapshot saved")
	return nil
}

func (s *SnapshotStore) Load(ctx context.Context) ([]model.Post, error) {
	rows, err := s.db.Query(ctx, `SELECT content, md_content_hash FROM post_snapshots ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("error querying snapshot: %w", err)
	}
	defer rows.Close()

	posts := make([]model.Post, 0)
	for rows.Next() {
		var compressed []byte
		var hash string
		if err := rows.Scan(&compressed, &hash); err != nil {
			return nil, fmt.Errorf("error scanning snapshot: %w", err)
		}

		data, err := s.compressor.Decompress(compressed)
		if err != nil {
			return nil, fmt.Errorf("error decompressing post: %w", err)
		}
		var p model.Post
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("error decoding post: %w", err)
		}
		p.MDContentHash = hash
		posts = append(posts, p)
	}
	return posts, rows.Err()
}
