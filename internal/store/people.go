package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/szymonk92/rolo/internal/relation"
)

// AddPerson inserts a new person into the roster. An empty ID gets a
// fresh UUID; an empty type defaults to mentioned.
func (s *SQLiteStore) AddPerson(ctx context.Context, p *relation.Person) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Type == "" {
		p.Type = relation.PersonMentioned
	}
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO people (id, name, nickname, person_type, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Nickname, string(p.Type), now,
	)
	if err != nil {
		return fmt.Errorf("inserting person: %w", err)
	}
	p.CreatedAt = now
	return nil
}

// GetPerson retrieves a person by id. Returns nil when not found.
func (s *SQLiteStore) GetPerson(ctx context.Context, id string) (*relation.Person, error) {
	p := &relation.Person{}
	var ptype string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, nickname, person_type, created_at FROM people WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Nickname, &ptype, &p.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting person %s: %w", id, err)
	}
	p.Type = relation.PersonType(ptype)
	return p, nil
}

// ListPeople returns the full roster ordered by name.
func (s *SQLiteStore) ListPeople(ctx context.Context) ([]relation.Person, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, nickname, person_type, created_at FROM people ORDER BY name COLLATE NOCASE, id`)
	if err != nil {
		return nil, fmt.Errorf("listing people: %w", err)
	}
	defer rows.Close()

	var people []relation.Person
	for rows.Next() {
		var p relation.Person
		var ptype string
		if err := rows.Scan(&p.ID, &p.Name, &p.Nickname, &ptype, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning person row: %w", err)
		}
		p.Type = relation.PersonType(ptype)
		people = append(people, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating people rows: %w", err)
	}
	return people, nil
}
