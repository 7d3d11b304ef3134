package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/szymonk92/rolo/internal/relation"
)

const relationColumns = `r.id, r.subject_id, p.name, r.relation_type, r.object_label,
	r.intensity, r.confidence, r.status, r.category, r.valid_from, r.valid_until,
	r.source_quote, r.created_at`

// AddRelation inserts a new relation for a subject. Manual entries
// default to confidence 1.0 and status current.
func (s *SQLiteStore) AddRelation(ctx context.Context, r *relation.Relation) (int64, error) {
	if !r.Type.Valid() {
		return 0, fmt.Errorf("invalid relation type %q", r.Type)
	}
	if r.Confidence == 0 {
		r.Confidence = 1.0
	}
	if r.Status == "" {
		r.Status = relation.StatusCurrent
	}
	now := time.Now().UTC()

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO relations (subject_id, relation_type, object_label, intensity, confidence, status, category, valid_from, valid_until, source_quote, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SubjectID, string(r.Type), r.ObjectLabel, string(r.Intensity),
		r.Confidence, string(r.Status), r.Category, r.ValidFrom, r.ValidUntil,
		r.SourceQuote, now,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting relation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting last insert id: %w", err)
	}
	r.ID = id
	r.CreatedAt = now
	return id, nil
}

// GetRelation retrieves a relation by id. Returns nil when not found.
func (s *SQLiteStore) GetRelation(ctx context.Context, id int64) (*relation.Relation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+relationColumns+`
		 FROM relations r JOIN people p ON p.id = r.subject_id
		 WHERE r.id = ?`, id)
	r, err := scanRelation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting relation %d: %w", id, err)
	}
	return r, nil
}

// ListRelationsBySubject returns all relations for one subject, newest
// first. The conflict engine receives this as the "existing" set.
func (s *SQLiteStore) ListRelationsBySubject(ctx context.Context, subjectID string) ([]relation.Relation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+relationColumns+`
		 FROM relations r JOIN people p ON p.id = r.subject_id
		 WHERE r.subject_id = ?
		 ORDER BY r.created_at DESC, r.id DESC`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("listing relations for subject %s: %w", subjectID, err)
	}
	defer rows.Close()
	return collectRelations(rows)
}

// ListRelations returns recent relations across all subjects.
func (s *SQLiteStore) ListRelations(ctx context.Context, limit int) ([]relation.Relation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+relationColumns+`
		 FROM relations r JOIN people p ON p.id = r.subject_id
		 ORDER BY r.created_at DESC, r.id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing relations: %w", err)
	}
	defer rows.Close()
	return collectRelations(rows)
}

// MarkRelationPast demotes a relation's status to past. The relation
// stays in the store: conflict resolution never silently deletes.
func (s *SQLiteStore) MarkRelationPast(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE relations SET status = ? WHERE id = ?`, string(relation.StatusPast), id)
	if err != nil {
		return fmt.Errorf("marking relation %d past: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("relation %d not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRelation(row rowScanner) (*relation.Relation, error) {
	r := &relation.Relation{}
	var rtype, intensity, status string
	err := row.Scan(&r.ID, &r.SubjectID, &r.SubjectName, &rtype, &r.ObjectLabel,
		&intensity, &r.Confidence, &status, &r.Category, &r.ValidFrom, &r.ValidUntil,
		&r.SourceQuote, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Type = relation.RelationType(rtype)
	r.Intensity = relation.Intensity(intensity)
	r.Status = relation.Status(status)
	return r, nil
}

func collectRelations(rows *sql.Rows) ([]relation.Relation, error) {
	var out []relation.Relation
	for rows.Next() {
		r, err := scanRelation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning relation row: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating relation rows: %w", err)
	}
	return out, nil
}
