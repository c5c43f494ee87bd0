package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"

	"github.com/markdave123-py/docindex/internal/config"
	"github.com/markdave123-py/docindex/internal/core"
	"github.com/markdave123-py/docindex/internal/logging"
	"github.com/markdave123-py/docindex/internal/models"
)

var _ core.DbClient = (*DatabaseClient)(nil)

// DatabaseClient implements core.DbClient over database/sql for both the
// Postgres (pgx + pgvector) and the SQLite dialects.
type DatabaseClient struct {
	db      *sql.DB
	dialect dialect
	log     *logrus.Logger
	now     func() time.Time
}

// NewDatabaseClient opens the pool described by cfg and bootstraps the schema.
func NewDatabaseClient(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	return Open(ctx, OptionsFromConfig(cfg), log)
}

// Open connects with explicit options and bootstraps the schema.
func Open(ctx context.Context, opts Options, log *logrus.Logger) (*DatabaseClient, error) {
	if log == nil {
		log = logging.Discard()
	}

	db, d, err := openPool(ctx, opts)
	if err != nil {
		return nil, err
	}

	if err := EnsureBootstrapped(ctx, db, d, log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	log.WithField("driver", d.name).Debug("database ready")
	return &DatabaseClient{db: db, dialect: d, log: log, now: time.Now}, nil
}

// OpenSQLite opens (creating if needed) a SQLite database file.
func OpenSQLite(ctx context.Context, path string, log *logrus.Logger) (*DatabaseClient, error) {
	return Open(ctx, Options{Driver: config.DriverSQLite, DSN: path}, log)
}

// DB exposes the pool for callers that need raw access.
func (c *DatabaseClient) DB() *sql.DB { return c.db }

// Driver reports the active dialect name.
func (c *DatabaseClient) Driver() string { return c.dialect.name }

func (c *DatabaseClient) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Implementing the db interface for Document

const documentColumns = `id, file_path, file_name, file_type, file_size, project_folder,
	processing_status, error_message, created_at, updated_at, processed_at`

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	now := c.now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}
	if doc.Status == "" {
		doc.Status = models.StatusPending
	}

	q := c.dialect.rebind(`
		INSERT INTO documents
			(id, file_path, file_name, file_type, file_size, project_folder,
			 processing_status, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.FilePath, doc.FileName, doc.FileType, doc.FileSize, doc.ProjectFolder,
		string(doc.Status), nullString(doc.ErrorMessage), doc.CreatedAt.UTC(), doc.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert document %s: %w", doc.FilePath, err)
	}
	return nil
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	q := c.dialect.rebind(`SELECT ` + documentColumns + ` FROM documents WHERE id = ?`)
	return c.getDocument(ctx, q, id)
}

func (c *DatabaseClient) GetDocumentByPath(ctx context.Context, filePath string) (*models.Document, error) {
	q := c.dialect.rebind(`SELECT ` + documentColumns + ` FROM documents WHERE file_path = ?`)
	return c.getDocument(ctx, q, filePath)
}

func (c *DatabaseClient) getDocument(ctx context.Context, q string, arg any) (*models.Document, error) {
	d, err := scanDocument(c.db.QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (c *DatabaseClient) ListDocuments(ctx context.Context, limit, offset int) ([]models.Document, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	q := c.dialect.rebind(`
		SELECT ` + documentColumns + `
		FROM documents
		ORDER BY created_at DESC, file_path ASC
		LIMIT ? OFFSET ?
	`)
	rows, err := c.db.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// UpdateDocumentStatus records a transition. processed_at is only written
// on completion; the error message is cleared by any non-error status.
func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, errorMessage string) error {
	now := c.now().UTC()

	var (
		res sql.Result
		err error
	)
	switch status {
	case models.StatusCompleted:
		q := c.dialect.rebind(`
			UPDATE documents
			SET processing_status = ?, error_message = NULL, updated_at = ?, processed_at = ?
			WHERE id = ?
		`)
		res, err = c.db.ExecContext(ctx, q, string(status), now, now, id)
	case models.StatusError:
		q := c.dialect.rebind(`
			UPDATE documents
			SET processing_status = ?, error_message = ?, updated_at = ?
			WHERE id = ?
		`)
		res, err = c.db.ExecContext(ctx, q, string(status), nullString(errorMessage), now, id)
	default:
		q := c.dialect.rebind(`
			UPDATE documents
			SET processing_status = ?, error_message = NULL, updated_at = ?
			WHERE id = ?
		`)
		res, err = c.db.ExecContext(ctx, q, string(status), now, id)
	}
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// Implementing the db interface for Document Chunks

// ReplaceChunks deletes the document's chunks and inserts the new set in a
// single transaction. Chunk indices follow slice order.
func (c *DatabaseClient) ReplaceChunks(ctx context.Context, documentID string, chunks []models.DocumentChunk) (err error) {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				c.log.WithError(rbErr).WithField("document_id", documentID).Warn("rollback failed")
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, c.dialect.rebind(`DELETE FROM document_chunks WHERE document_id = ?`), documentID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}

	if len(chunks) > 0 {
		stmt, perr := tx.PrepareContext(ctx, c.dialect.rebind(`
			INSERT INTO document_chunks
				(id, document_id, chunk_index, chunk_text, metadata, chunk_embedding, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`))
		if perr != nil {
			err = fmt.Errorf("prepare insert: %w", perr)
			return err
		}
		defer stmt.Close()

		now := c.now().UTC()
		for i := range chunks {
			ch := &chunks[i]
			meta, merr := encodeMetadata(ch.Metadata)
			if merr != nil {
				err = fmt.Errorf("chunk %d metadata: %w", i, merr)
				return err
			}
			created := ch.CreatedAt
			if created.IsZero() {
				created = now
			}
			if _, err = stmt.ExecContext(ctx,
				ch.ID, documentID, i, ch.Text, meta, embeddingValue(ch.Embedding), created.UTC(),
			); err != nil {
				return fmt.Errorf("insert chunk %d: %w", i, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const chunkColumns = `id, document_id, chunk_index, chunk_text, metadata, chunk_embedding, created_at`

// GetChunksByDocument returns chunks in index order; limit <= 0 means all.
func (c *DatabaseClient) GetChunksByDocument(ctx context.Context, documentID string, limit int) ([]models.DocumentChunk, error) {
	q := `SELECT ` + chunkColumns + ` FROM document_chunks WHERE document_id = ? ORDER BY chunk_index ASC`
	args := []any{documentID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return c.queryChunks(ctx, c.dialect.rebind(q), args...)
}

func (c *DatabaseClient) CountChunks(ctx context.Context, documentID string) (int, error) {
	var n int
	q := c.dialect.rebind(`SELECT COUNT(*) FROM document_chunks WHERE document_id = ?`)
	if err := c.db.QueryRowContext(ctx, q, documentID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *DatabaseClient) ListChunksWithoutEmbedding(ctx context.Context, limit int) ([]models.DocumentChunk, error) {
	if limit <= 0 {
		limit = 100
	}
	q := c.dialect.rebind(`
		SELECT ` + chunkColumns + `
		FROM document_chunks
		WHERE chunk_embedding IS NULL
		ORDER BY document_id, chunk_index
		LIMIT ?
	`)
	return c.queryChunks(ctx, q, limit)
}

// UpdateChunkEmbeddings stores a batch of vectors in one transaction.
func (c *DatabaseClient) UpdateChunkEmbeddings(ctx context.Context, rows []models.ChunkEmbedding) (err error) {
	if len(rows) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, c.dialect.rebind(`UPDATE document_chunks SET chunk_embedding = ? WHERE id = ?`))
	if err != nil {
		return fmt.Errorf("prepare update: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err = stmt.ExecContext(ctx, embeddingValue(r.Embedding), r.ChunkID); err != nil {
			return fmt.Errorf("update chunk %s: %w", r.ChunkID, err)
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) queryChunks(ctx context.Context, q string, args ...any) ([]models.DocumentChunk, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.DocumentChunk{}
	for rows.Next() {
		var (
			ch      models.DocumentChunk
			meta    []byte
			emb     sql.NullString
			created dbTime
		)
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.ChunkIndex, &ch.Text, &meta, &emb, &created); err != nil {
			return nil, err
		}
		if ch.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, fmt.Errorf("chunk %s metadata: %w", ch.ID, err)
		}
		if ch.Embedding, err = parseEmbedding(emb); err != nil {
			return nil, fmt.Errorf("chunk %s embedding: %w", ch.ID, err)
		}
		ch.CreatedAt = created.Time
		out = append(out, ch)
	}
	return out, rows.Err()
}

// Search

const searchColumns = `c.id, c.document_id, c.chunk_index, c.chunk_text, d.file_name, d.file_type, d.project_folder`

// SearchChunksByContent is a case-insensitive substring match over chunk text.
func (c *DatabaseClient) SearchChunksByContent(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	q := c.dialect.rebind(`
		SELECT ` + searchColumns + `
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.chunk_text ` + c.dialect.likeOp() + ` ?
		ORDER BY d.file_path, c.chunk_index
		LIMIT ?
	`)
	rows, err := c.db.QueryContext(ctx, q, "%"+query+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.SearchResult{}
	for rows.Next() {
		var r models.SearchResult
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.ChunkIndex, &r.Text, &r.FileName, &r.FileType, &r.ProjectFolder); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SearchChunksByVector returns the nearest chunks by L2 distance. Postgres
// orders with pgvector's <-> operator; SQLite computes distances in process.
func (c *DatabaseClient) SearchChunksByVector(ctx context.Context, queryVec []float32, limit int) ([]models.SearchResult, error) {
	if len(queryVec) == 0 {
		return nil, errors.New("empty query vector")
	}
	if limit <= 0 {
		limit = 10
	}
	if !c.dialect.isPostgres() {
		return c.searchVectorInProcess(ctx, queryVec, limit)
	}

	vec := pgvector.NewVector(queryVec)
	const q = `
		SELECT ` + searchColumns + `, c.chunk_embedding <-> $1 AS distance
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.chunk_embedding IS NOT NULL
		ORDER BY c.chunk_embedding <-> $1
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, q, vec, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.SearchResult{}
	for rows.Next() {
		var r models.SearchResult
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.ChunkIndex, &r.Text, &r.FileName, &r.FileType, &r.ProjectFolder, &r.Distance); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) searchVectorInProcess(ctx context.Context, queryVec []float32, limit int) ([]models.SearchResult, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT `+searchColumns+`, c.chunk_embedding
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.chunk_embedding IS NOT NULL
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.SearchResult{}
	for rows.Next() {
		var (
			r   models.SearchResult
			emb sql.NullString
		)
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.ChunkIndex, &r.Text, &r.FileName, &r.FileType, &r.ProjectFolder, &emb); err != nil {
			return nil, err
		}
		vec, err := parseEmbedding(emb)
		if err != nil {
			return nil, fmt.Errorf("chunk %s embedding: %w", r.ChunkID, err)
		}
		if len(vec) != len(queryVec) {
			continue
		}
		r.Distance = l2Distance(vec, queryVec)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Stats counts documents and chunks.
func (c *DatabaseClient) Stats(ctx context.Context) (*models.Stats, error) {
	s := &models.Stats{DocumentsByStatus: map[models.DocumentStatus]int64{}}

	err := c.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM documents),
			(SELECT COUNT(*) FROM document_chunks),
			(SELECT COUNT(*) FROM documents WHERE processing_status = 'completed'),
			(SELECT COUNT(*) FROM document_chunks WHERE chunk_embedding IS NOT NULL)
	`).Scan(&s.TotalDocuments, &s.TotalChunks, &s.CompletedDocuments, &s.ChunksWithEmbeddings)
	if err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}

	byStatus, err := c.countDocumentsBy(ctx, "processing_status")
	if err != nil {
		return nil, err
	}
	for status, n := range byStatus {
		s.DocumentsByStatus[models.DocumentStatus(status)] = n
	}
	if s.DocumentsByProject, err = c.countDocumentsBy(ctx, "project_folder"); err != nil {
		return nil, err
	}
	if s.DocumentsByType, err = c.countDocumentsBy(ctx, "file_type"); err != nil {
		return nil, err
	}
	return s, nil
}

// countDocumentsBy groups documents by column. column is always one of
// the fixed names above, never caller input.
func (c *DatabaseClient) countDocumentsBy(ctx context.Context, column string) (map[string]int64, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+column+`, COUNT(*) FROM documents GROUP BY `+column)
	if err != nil {
		return nil, fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var (
			key string
			n   int64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("scan count by %s: %w", column, err)
		}
		out[key] = n
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		d         models.Document
		status    string
		errMsg    sql.NullString
		created   dbTime
		updated   dbTime
		processed dbTime
	)
	if err := row.Scan(
		&d.ID, &d.FilePath, &d.FileName, &d.FileType, &d.FileSize, &d.ProjectFolder,
		&status, &errMsg, &created, &updated, &processed,
	); err != nil {
		return nil, err
	}
	d.Status = models.DocumentStatus(status)
	d.ErrorMessage = errMsg.String
	d.CreatedAt = created.Time
	d.UpdatedAt = updated.Time
	d.ProcessedAt = processed.ptr()
	return &d, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func encodeMetadata(meta map[string]any) (string, error) {
	if meta == nil {
		return "{}", nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMetadata(raw []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// embeddingValue stores NULL for a chunk without a vector.
func embeddingValue(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

func parseEmbedding(ns sql.NullString) ([]float32, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var v pgvector.Vector
	if err := v.Scan(ns.String); err != nil {
		return nil, err
	}
	return v.Slice(), nil
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
