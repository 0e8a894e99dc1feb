package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/smartmark/internal/domain"
	"github.com/MrSnakeDoc/smartmark/internal/remote"
)

// Insert stores a new bookmark. The ID comes from an INCR counter so it is
// unique across every process sharing the Redis instance.
func (s *Store) Insert(ctx context.Context, rec domain.NewBookmark) (domain.Bookmark, error) {
	id, err := s.client.Incr(ctx, KeyBookmarkSeq).Result()
	if err != nil {
		return domain.Bookmark{}, fmt.Errorf("failed to allocate bookmark id: %w", err)
	}

	row := domain.Bookmark{
		ID:        id,
		Title:     rec.Title,
		URL:       rec.URL,
		Owner:     rec.Owner,
		CreatedAt: s.now().UTC(),
	}
	data, err := json.Marshal(row)
	if err != nil {
		return domain.Bookmark{}, fmt.Errorf("failed to marshal bookmark: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, BookmarkKey(id), data, 0)
		pipe.ZAdd(ctx, OwnerKey(row.Owner), redis.Z{
			Score:  float64(row.CreatedAt.UnixMilli()),
			Member: id,
		})
		return nil
	})
	if err != nil {
		return domain.Bookmark{}, fmt.Errorf("failed to save bookmark: %w", err)
	}

	return row, nil
}

// SelectByOwner retrieves every bookmark of owner, newest first
func (s *Store) SelectByOwner(ctx context.Context, owner string) ([]domain.Bookmark, error) {
	ids, err := s.client.ZRevRange(ctx, OwnerKey(owner), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bookmark IDs: %w", err)
	}

	if len(ids) == 0 {
		return []domain.Bookmark{}, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, KeyPrefixBookmark+id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bookmarks: %w", err)
	}

	bookmarks := make([]domain.Bookmark, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Deleted between ZREVRANGE and MGET
			continue
		}
		var row domain.Bookmark
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			return nil, fmt.Errorf("failed to unmarshal bookmark: %w", err)
		}
		if row.Owner != owner {
			continue
		}
		bookmarks = append(bookmarks, row)
	}

	// Scores have millisecond precision; settle ties by ID.
	domain.SortNewestFirst(bookmarks)
	return bookmarks, nil
}

// Delete removes a bookmark owned by owner. The row is watched so a concurrent
// delete of the same row cannot succeed twice.
func (s *Store) Delete(ctx context.Context, owner string, id int64) (domain.Bookmark, error) {
	key := BookmarkKey(id)
	var row domain.Bookmark

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return remote.ErrNotFound
			}
			return fmt.Errorf("failed to get bookmark: %w", err)
		}
		if err := json.Unmarshal(data, &row); err != nil {
			return fmt.Errorf("failed to unmarshal bookmark: %w", err)
		}
		if row.Owner != owner {
			return remote.ErrNotFound
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, OwnerKey(owner), id)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return row, nil
	case errors.Is(err, remote.ErrNotFound):
		return domain.Bookmark{}, err
	case errors.Is(err, redis.TxFailedErr):
		// Someone else removed it first.
		return domain.Bookmark{}, remote.ErrNotFound
	default:
		return domain.Bookmark{}, fmt.Errorf("failed to delete bookmark: %w", err)
	}
}
