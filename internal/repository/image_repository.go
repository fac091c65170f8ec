package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/printmint/cardpress/internal/models"
)

type ImageRepository struct {
	db *sql.DB
}

func NewImageRepository(db *sql.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

// Save inserts the metadata row for a successful generation. Rows are
// append-only; nothing updates them afterwards.
func (r *ImageRepository) Save(ctx context.Context, meta *models.ImageMetadata) (*models.ImageMetadata, error) {
	flags, err := json.Marshal(meta.HasNsfwFlags)
	if err != nil {
		return nil, fmt.Errorf("marshal nsfw flags: %w", err)
	}
	const query = `
INSERT INTO image_metadata (user_id, prompt, image_url, storage_url, seed, width, height, content_type, has_nsfw_flags, full_result)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query,
		meta.UserID, meta.Prompt, meta.ImageURL, meta.StorageURL, meta.Seed,
		meta.Width, meta.Height, meta.ContentType, string(flags), meta.FullResult)
	if err != nil {
		return nil, fmt.Errorf("insert image metadata: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("image metadata last insert id: %w", err)
	}
	meta.ID = id
	return meta, nil
}

// ListRecent returns the newest metadata rows for the user, newest first.
func (r *ImageRepository) ListRecent(ctx context.Context, userID string, limit int) ([]models.ImageMetadata, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
SELECT id, user_id, prompt, image_url, storage_url, seed, width, height, content_type, COALESCE(has_nsfw_flags, ''), COALESCE(full_result, ''), created_at
FROM image_metadata
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var images []models.ImageMetadata
	for rows.Next() {
		var meta models.ImageMetadata
		var flags string
		if err := rows.Scan(&meta.ID, &meta.UserID, &meta.Prompt, &meta.ImageURL, &meta.StorageURL,
			&meta.Seed, &meta.Width, &meta.Height, &meta.ContentType, &flags, &meta.FullResult, &meta.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan image metadata: %w", err)
		}
		if flags != "" {
			if err := json.Unmarshal([]byte(flags), &meta.HasNsfwFlags); err != nil {
				return nil, fmt.Errorf("unmarshal nsfw flags: %w", err)
			}
		}
		images = append(images, meta)
	}
	return images, rows.Err()
}
