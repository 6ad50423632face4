package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LinkRecord is the manifest entry proving a source file was materialized
// into the library. Target paths are unique; re-processing the same source
// finds its record here instead of redoing filesystem work.
type LinkRecord struct {
	ID          int64
	SourcePath  string
	TargetPath  string
	Fingerprint string
	CreatedAt   time.Time
}

// ErrTargetClaimed reports an insert against a target path already owned by a
// different source.
var ErrTargetClaimed = errors.New("target path already claimed")

const linkColumns = "id, source_path, target_path, fingerprint, created_at"

// RecordLink persists a new manifest entry. When the target is already
// claimed by the same source the existing record is returned untouched;
// a different source yields ErrTargetClaimed.
func (s *Store) RecordLink(ctx context.Context, sourcePath, targetPath, fingerprint string) (*LinkRecord, error) {
	if sourcePath == "" || targetPath == "" {
		return nil, errors.New("source and target paths are required")
	}

	existing, err := s.LinkByTarget(ctx, targetPath)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.SourcePath == sourcePath {
			return existing, nil
		}
		return nil, fmt.Errorf("%w: %s held by %s", ErrTargetClaimed, targetPath, existing.SourcePath)
	}

	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO link_records (source_path, target_path, fingerprint, created_at) VALUES (?, ?, ?, ?)`,
		sourcePath,
		targetPath,
		nullableString(fingerprint),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert link record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("link record id: %w", err)
	}
	return &LinkRecord{
		ID:          id,
		SourcePath:  sourcePath,
		TargetPath:  targetPath,
		Fingerprint: fingerprint,
		CreatedAt:   now,
	}, nil
}

// LinkByTarget returns the manifest entry claiming a target path, if any.
func (s *Store) LinkByTarget(ctx context.Context, targetPath string) (*LinkRecord, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+linkColumns+` FROM link_records WHERE target_path = ? LIMIT 1`,
		targetPath,
	)
	record, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("link by target: %w", err)
	}
	return record, nil
}

// LinkBySource returns the manifest entry for a source path, if any.
func (s *Store) LinkBySource(ctx context.Context, sourcePath string) (*LinkRecord, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+linkColumns+` FROM link_records WHERE source_path = ? ORDER BY id LIMIT 1`,
		sourcePath,
	)
	record, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("link by source: %w", err)
	}
	return record, nil
}

// Links lists every manifest entry ordered by creation time.
func (s *Store) Links(ctx context.Context) ([]*LinkRecord, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT `+linkColumns+` FROM link_records ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list link records: %w", err)
	}
	defer rows.Close()

	var records []*LinkRecord
	for rows.Next() {
		record, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanLink(scanner interface{ Scan(dest ...any) error }) (*LinkRecord, error) {
	var (
		id          int64
		sourcePath  string
		targetPath  string
		fingerprint sql.NullString
		createdRaw  sql.NullString
	)
	if err := scanner.Scan(&id, &sourcePath, &targetPath, &fingerprint, &createdRaw); err != nil {
		return nil, err
	}
	record := &LinkRecord{
		ID:          id,
		SourcePath:  sourcePath,
		TargetPath:  targetPath,
		Fingerprint: fingerprint.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		record.CreatedAt = created
	}
	return record, nil
}
