// Package sqlite provides a pure-Go SQLite implementation of the storage
// interfaces. It is the reference backend used by tests and local
// deployments; the postgres backend offloads vector search to pgvector, while
// this one computes cosine similarity in Go.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/evermem/evermem/internal/storage"
	"github.com/evermem/evermem/pkg/types"
)

// Ensure *RecordStore implements the full storage surface at compile time.
var _ storage.Store = (*RecordStore)(nil)

// maxChainLength caps supersede chain walks to prevent infinite loops on
// corrupted link data.
const maxChainLength = 50

// RecordStore implements storage.Store using SQLite.
type RecordStore struct {
	db *sql.DB
}

// NewRecordStore opens a SQLite database, configures WAL mode, and creates
// the schema. Use ":memory:" as the dsn for an in-memory database.
func NewRecordStore(dsn string) (*RecordStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load;
	// WAL mode lets readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &RecordStore{db: db}, nil
}

// GetDB exposes the underlying connection for test helpers.
func (s *RecordStore) GetDB() *sql.DB {
	return s.db
}

// Close releases the database connection.
func (s *RecordStore) Close() error {
	return s.db.Close()
}

// recordColumns is the canonical column list used by every record SELECT so
// that scanRecord stays in sync with one place.
const recordColumns = `
	id, owner_id, name, memory_type, summary, category,
	importance, importance_score, sentiment_average, sentiment_history,
	mention_count, status, version, supersedes_id, superseded_by,
	is_historical, effective_from, expires_at, sensitivity_level,
	confidence, embedding, payload, created_at, updated_at
`

// CreateRecord inserts a new record.
func (s *RecordStore) CreateRecord(ctx context.Context, record *types.Record) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.UpdatedAt = record.CreatedAt

	history, payload, err := encodeRecordJSON(record)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		record.ID, record.OwnerID, record.Name, string(record.MemoryType),
		record.Summary, nullString(record.Category),
		string(record.Importance), record.ImportanceScore,
		record.SentimentAverage, history,
		record.MentionCount, string(record.Status), record.Version,
		nullString(record.SupersedesID), nullString(record.SupersededBy),
		boolToInt(record.IsHistorical),
		nullTime(record.EffectiveFrom), nullTime(record.ExpiresAt),
		string(record.Sensitivity), record.Confidence,
		serializeEmbedding(record.Embedding), payload,
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: CreateRecord: %w", err)
	}

	return nil
}

// GetRecord retrieves a record by owner and ID.
func (s *RecordStore) GetRecord(ctx context.Context, ownerID, id string) (*types.Record, error) {
	if ownerID == "" || id == "" {
		return nil, fmt.Errorf("%w: owner ID and record ID are required", storage.ErrInvalidInput)
	}

	query := `SELECT ` + recordColumns + ` FROM records WHERE owner_id = ? AND id = ?`
	row := s.db.QueryRowContext(ctx, query, ownerID, id)

	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: GetRecord: %w", err)
	}

	return record, nil
}

// GetRecords retrieves a batch of records by ID in one query.
func (s *RecordStore) GetRecords(ctx context.Context, ownerID string, ids []string) ([]*types.Record, error) {
	if len(ids) == 0 {
		return []*types.Record{}, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, ownerID)
	for _, id := range ids {
		args = append(args, id)
	}

	query := `SELECT ` + recordColumns + ` FROM records WHERE owner_id = ? AND id IN (` + placeholders + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: GetRecords: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// UpdateRecord persists a modified record with an optimistic version check.
func (s *RecordStore) UpdateRecord(ctx context.Context, record *types.Record, expectedVersion int) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	record.UpdatedAt = time.Now().UTC()

	history, payload, err := encodeRecordJSON(record)
	if err != nil {
		return err
	}

	query := `
		UPDATE records SET
			name = ?, memory_type = ?, summary = ?, category = ?,
			importance = ?, importance_score = ?,
			sentiment_average = ?, sentiment_history = ?,
			mention_count = ?, status = ?, version = ?,
			supersedes_id = ?, superseded_by = ?, is_historical = ?,
			effective_from = ?, expires_at = ?, sensitivity_level = ?,
			confidence = ?, embedding = ?, payload = ?, updated_at = ?
		WHERE owner_id = ? AND id = ? AND version = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		record.Name, string(record.MemoryType), record.Summary, nullString(record.Category),
		string(record.Importance), record.ImportanceScore,
		record.SentimentAverage, history,
		record.MentionCount, string(record.Status), record.Version,
		nullString(record.SupersedesID), nullString(record.SupersededBy),
		boolToInt(record.IsHistorical),
		nullTime(record.EffectiveFrom), nullTime(record.ExpiresAt),
		string(record.Sensitivity), record.Confidence,
		serializeEmbedding(record.Embedding), payload, record.UpdatedAt,
		record.OwnerID, record.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("sqlite: UpdateRecord: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: UpdateRecord rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing record from a concurrent modification.
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM records WHERE owner_id = ? AND id = ?`,
			record.OwnerID, record.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("sqlite: UpdateRecord existence check: %w", err)
		}
		if exists == 0 {
			return storage.ErrNotFound
		}
		return storage.ErrVersionConflict
	}

	return nil
}

// DeleteRecord physically removes a record row.
func (s *RecordStore) DeleteRecord(ctx context.Context, ownerID, id string) error {
	if ownerID == "" || id == "" {
		return fmt.Errorf("%w: owner ID and record ID are required", storage.ErrInvalidInput)
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE owner_id = ? AND id = ?`, ownerID, id)
	if err != nil {
		return fmt.Errorf("sqlite: DeleteRecord: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: DeleteRecord rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// ListActive retrieves active records for an owner.
func (s *RecordStore) ListActive(ctx context.Context, ownerID string, opts storage.ListOptions) ([]*types.Record, error) {
	opts.Normalize()

	var sb strings.Builder
	sb.WriteString(`SELECT ` + recordColumns + ` FROM records WHERE owner_id = ? AND status = 'active'`)

	args := []interface{}{ownerID}
	if opts.Category != "" {
		sb.WriteString(" AND category = ?")
		args = append(args, opts.Category)
	}
	if opts.MemoryType != "" {
		sb.WriteString(" AND memory_type = ?")
		args = append(args, string(opts.MemoryType))
	}
	if opts.RequireEmbedding {
		sb.WriteString(" AND embedding IS NOT NULL")
	}
	sb.WriteString(" ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?")
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: ListActive: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// TopRecords returns the top active records ranked by importance then mentions.
func (s *RecordStore) TopRecords(ctx context.Context, ownerID string, limit int) ([]*types.Record, error) {
	if limit < 1 {
		limit = 10
	}

	query := `
		SELECT ` + recordColumns + `
		FROM records
		WHERE owner_id = ? AND status = 'active'
		ORDER BY importance_score DESC, mention_count DESC, id ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: TopRecords: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// FindByName performs a fuzzy name match against active records. Exact
// matches sort before prefix matches before substring matches.
func (s *RecordStore) FindByName(ctx context.Context, ownerID, name string, limit int) ([]*types.Record, error) {
	if strings.TrimSpace(name) == "" {
		return []*types.Record{}, nil
	}
	if limit < 1 {
		limit = 5
	}

	lowered := strings.ToLower(strings.TrimSpace(name))
	pattern := "%" + escapeLike(lowered) + "%"

	query := `
		SELECT ` + recordColumns + `
		FROM records
		WHERE owner_id = ? AND status = 'active'
		  AND LOWER(name) LIKE ? ESCAPE '\'
		ORDER BY
			CASE
				WHEN LOWER(name) = ? THEN 0
				WHEN LOWER(name) LIKE ? ESCAPE '\' THEN 1
				ELSE 2
			END,
			mention_count DESC, id ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID, pattern, lowered, escapeLike(lowered)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: FindByName: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// EvolutionChain returns the full supersede chain containing the given
// record, ordered oldest to newest.
func (s *RecordStore) EvolutionChain(ctx context.Context, ownerID, id string) ([]*types.Record, error) {
	record, err := s.GetRecord(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	// Walk backward to the oldest ancestor.
	oldest := record
	for i := 0; i < maxChainLength && oldest.SupersedesID != ""; i++ {
		prev, err := s.GetRecord(ctx, ownerID, oldest.SupersedesID)
		if err != nil {
			if err == storage.ErrNotFound {
				break // dangling back link, start from what we have
			}
			return nil, err
		}
		oldest = prev
	}

	// Walk forward collecting the chain.
	chain := []*types.Record{oldest}
	current := oldest
	for i := 0; i < maxChainLength && current.SupersededBy != ""; i++ {
		next, err := s.GetRecord(ctx, ownerID, current.SupersededBy)
		if err != nil {
			if err == storage.ErrNotFound {
				break
			}
			return nil, err
		}
		chain = append(chain, next)
		current = next
	}

	return chain, nil
}

// validateRecord checks the invariant fields every write must satisfy.
func validateRecord(record *types.Record) error {
	if record == nil {
		return storage.ErrInvalidInput
	}
	if record.ID == "" {
		return fmt.Errorf("%w: record ID is required", storage.ErrInvalidInput)
	}
	if record.OwnerID == "" {
		return fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}
	if !types.IsValidMemoryType(record.MemoryType) {
		return fmt.Errorf("%w: invalid memory type %q", storage.ErrInvalidInput, record.MemoryType)
	}
	if !types.IsValidStatus(record.Status) {
		return fmt.Errorf("%w: invalid status %q", storage.ErrInvalidInput, record.Status)
	}
	if record.Version < 1 {
		return fmt.Errorf("%w: version must be >= 1", storage.ErrInvalidInput)
	}
	return nil
}

// encodeRecordJSON encodes the sentiment history and payload columns.
func encodeRecordJSON(record *types.Record) (history, payload interface{}, err error) {
	history = nil
	if len(record.SentimentHistory) > 0 {
		b, merr := json.Marshal(record.SentimentHistory)
		if merr != nil {
			return nil, nil, fmt.Errorf("sqlite: encode sentiment history: %w", merr)
		}
		history = string(b)
	}

	payload = nil
	if record.Payload != nil {
		b, merr := json.Marshal(record.Payload)
		if merr != nil {
			return nil, nil, fmt.Errorf("sqlite: encode payload: %w", merr)
		}
		payload = string(b)
	}

	return history, payload, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanRecord.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord scans one record row using the recordColumns ordering.
func scanRecord(row rowScanner) (*types.Record, error) {
	var (
		record                              types.Record
		memoryType, status                  string
		importance, sensitivity             string
		category, supersedes, supersededBy  sql.NullString
		history, payload                    sql.NullString
		isHistorical                        int
		effectiveFrom, expiresAt            sql.NullTime
		embedding                           []byte
	)

	err := row.Scan(
		&record.ID, &record.OwnerID, &record.Name, &memoryType, &record.Summary, &category,
		&importance, &record.ImportanceScore, &record.SentimentAverage, &history,
		&record.MentionCount, &status, &record.Version, &supersedes, &supersededBy,
		&isHistorical, &effectiveFrom, &expiresAt, &sensitivity,
		&record.Confidence, &embedding, &payload, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.MemoryType = types.MemoryType(memoryType)
	record.Status = types.Status(status)
	record.Importance = types.Importance(importance)
	record.Sensitivity = types.SensitivityLevel(sensitivity)
	record.Category = category.String
	record.SupersedesID = supersedes.String
	record.SupersededBy = supersededBy.String
	record.IsHistorical = isHistorical != 0

	if effectiveFrom.Valid {
		t := effectiveFrom.Time
		record.EffectiveFrom = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		record.ExpiresAt = &t
	}

	if history.Valid && history.String != "" {
		if err := json.Unmarshal([]byte(history.String), &record.SentimentHistory); err != nil {
			return nil, fmt.Errorf("decode sentiment history: %w", err)
		}
	}

	record.Embedding = deserializeEmbedding(embedding)

	if payload.Valid && payload.String != "" {
		p, err := types.DecodePayload(record.MemoryType, []byte(payload.String))
		if err != nil {
			return nil, err
		}
		record.Payload = p
	}

	return &record, nil
}

// scanRecords drains a result set of record rows.
func scanRecords(rows *sql.Rows) ([]*types.Record, error) {
	records := make([]*types.Record, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate records: %w", err)
	}
	return records, nil
}

// serializeEmbedding encodes a vector as a little-endian float32 BLOB.
// Returns nil for empty vectors so the column stays NULL.
func serializeEmbedding(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(embedding))
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeEmbedding decodes a little-endian float32 BLOB.
func deserializeEmbedding(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	embedding := make([]float32, len(data)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return embedding
}

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
