package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/markdave123-py/docindex/internal/core"
	"github.com/markdave123-py/docindex/internal/models"
)

const watchFolderColumns = `id, folder_path, recursive, file_types, priority, active, created_at`

// ListWatchFolders returns the registry, highest priority first.
func (c *DatabaseClient) ListWatchFolders(ctx context.Context, activeOnly bool) ([]models.WatchFolder, error) {
	q := `SELECT ` + watchFolderColumns + ` FROM watch_folders`
	var args []any
	if activeOnly {
		q += ` WHERE active = ?`
		args = append(args, true)
	}
	q += ` ORDER BY priority DESC, folder_path ASC`

	rows, err := c.db.QueryContext(ctx, c.dialect.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list watch folders: %w", err)
	}
	defer rows.Close()

	out := []models.WatchFolder{}
	for rows.Next() {
		f, err := scanWatchFolder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) GetWatchFolder(ctx context.Context, id int64) (*models.WatchFolder, error) {
	q := c.dialect.rebind(`SELECT ` + watchFolderColumns + ` FROM watch_folders WHERE id = ?`)
	f, err := scanWatchFolder(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("watch folder %d: %w", id, core.ErrNotFound)
	}
	return f, err
}

// AddWatchFolder registers an active folder and fills in its ID.
func (c *DatabaseClient) AddWatchFolder(ctx context.Context, folder *models.WatchFolder) error {
	if folder == nil || folder.FolderPath == "" {
		return errors.New("watch folder path is required")
	}
	folder.Active = true
	folder.FileTypes = NormalizeFileTypes(folder.FileTypes)
	if folder.CreatedAt.IsZero() {
		folder.CreatedAt = c.now().UTC()
	}

	q := c.dialect.rebind(`
		INSERT INTO watch_folders
			(folder_path, recursive, file_types, priority, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	err := c.db.QueryRowContext(ctx, q,
		folder.FolderPath, folder.Recursive, strings.Join(folder.FileTypes, ","),
		folder.Priority, folder.Active, folder.CreatedAt.UTC()).Scan(&folder.ID)
	if err != nil {
		return fmt.Errorf("insert watch folder %s: %w", folder.FolderPath, err)
	}
	return nil
}

// UpdateWatchFolder overwrites every mutable field of the folder with its ID.
func (c *DatabaseClient) UpdateWatchFolder(ctx context.Context, folder *models.WatchFolder) error {
	if folder == nil || folder.FolderPath == "" {
		return errors.New("watch folder path is required")
	}
	folder.FileTypes = NormalizeFileTypes(folder.FileTypes)

	q := c.dialect.rebind(`
		UPDATE watch_folders
		SET folder_path = ?, recursive = ?, file_types = ?, priority = ?, active = ?
		WHERE id = ?
	`)
	res, err := c.db.ExecContext(ctx, q,
		folder.FolderPath, folder.Recursive, strings.Join(folder.FileTypes, ","),
		folder.Priority, folder.Active, folder.ID)
	if err != nil {
		return fmt.Errorf("update watch folder %d: %w", folder.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("watch folder %d: %w", folder.ID, core.ErrNotFound)
	}
	return nil
}

func (c *DatabaseClient) DeleteWatchFolder(ctx context.Context, id int64) error {
	q := c.dialect.rebind(`DELETE FROM watch_folders WHERE id = ?`)
	res, err := c.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("delete watch folder %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("watch folder %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// NormalizeFileTypes lower-cases extensions, adds the leading dot and drops
// blanks and duplicates, keeping the first-seen order.
func NormalizeFileTypes(types []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, t := range types {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if !strings.HasPrefix(t, ".") {
			t = "." + t
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func scanWatchFolder(r rowScanner) (*models.WatchFolder, error) {
	var (
		f       models.WatchFolder
		types   string
		created dbTime
	)
	if err := r.Scan(&f.ID, &f.FolderPath, &f.Recursive, &types, &f.Priority, &f.Active, &created); err != nil {
		return nil, err
	}
	f.FileTypes = NormalizeFileTypes(strings.Split(types, ","))
	f.CreatedAt = created.Time
	return &f, nil
}
