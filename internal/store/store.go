// Package store is the Entity Store and Audit Recorder. All SQL uses $N
// placeholders, which both pgx and modernc.org/sqlite accept, so the same
// statements run on Postgres and on the embedded database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"it-inventory-api/internal/apperr"
)

// Postgres SQLSTATE codes.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries runs statements against the pool or against one transaction.
type Queries struct {
	q   querier
	now func() time.Time
}

// Store owns the connection pool. Its embedded Queries run outside any
// transaction; WithTx hands out transactional ones.
type Store struct {
	*Queries
	db *sql.DB
}

// New creates a store over db.
func New(db *sql.DB) *Store {
	return &Store{Queries: &Queries{q: db, now: utcNow}, db: db}
}

// SetClock replaces the time source used for created_at/updated_at columns.
func (s *Store) SetClock(now func() time.Time) {
	s.Queries.now = now
}

func utcNow() time.Time { return time.Now().UTC() }

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn inside a transaction. The transaction commits only when fn
// returns nil; any error rolls back every statement fn issued.
func (s *Store) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Storage("begin transaction", err)
	}

	if err := fn(&Queries{q: tx, now: s.Queries.now}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperr.Storage("commit transaction", err)
	}
	return nil
}

// translate maps driver errors onto the apperr kinds. Unique violations become
// conflicts and foreign key violations become missing references.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return apperr.Conflictf("%s", conflictMessage(pgErr.ConstraintName+" "+pgErr.Detail))
		case pgForeignKeyViolation:
			return apperr.NotFoundf("referenced location does not exist")
		}
		return apperr.Storage(op, err)
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"), strings.Contains(msg, "duplicate key"):
		return apperr.Conflictf("%s", conflictMessage(msg))
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return apperr.NotFoundf("referenced location does not exist")
	}
	return apperr.Storage(op, err)
}

func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgForeignKeyViolation
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func conflictMessage(detail string) string {
	switch {
	case strings.Contains(detail, "serial_number"):
		return "serial_number already exists"
	case strings.Contains(detail, "asset_tag"):
		return "asset_tag already exists"
	case strings.Contains(detail, "site_name"), strings.Contains(detail, "site_room"):
		return "a location with this site_name and room_number already exists"
	default:
		return "record already exists"
	}
}

// buildOrderBy builds a safe ORDER BY clause using a whitelist of allowed keys.
// allowed maps incoming sort keys (e.g., "asset_tag") to column identifiers.
// Input sort is comma-separated; prefix with '-' for DESC. fallback is used
// when nothing valid was requested.
func buildOrderBy(sortParam string, allowed map[string]string, fallback string) string {
	parts := strings.Split(sortParam, ",")
	clauses := make([]string, 0, len(parts))
	for _, raw := range parts {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		desc := false
		if strings.HasPrefix(s, "-") {
			desc = true
			s = strings.TrimPrefix(s, "-")
		}
		col, ok := allowed[s]
		if !ok {
			continue
		}
		if desc {
			clauses = append(clauses, col+" DESC")
		} else {
			clauses = append(clauses, col+" ASC")
		}
	}
	if len(clauses) == 0 {
		return " ORDER BY " + fallback
	}
	return " ORDER BY " + strings.Join(clauses, ", ")
}

// whereBuilder accumulates AND-ed clauses with numbered placeholders.
type whereBuilder struct {
	clauses []string
	args    []any
}

// add appends a clause formatted with the new argument's placeholder number.
// Use $%[1]d to reference the argument more than once.
func (w *whereBuilder) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

// containsPattern builds a case-insensitive LIKE pattern matching s as a
// literal substring. Clauses using it must declare ESCAPE '\'.
func containsPattern(s string) string {
	s = likeEscaper.Replace(strings.ToLower(s))
	return "%" + s + "%"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (w *whereBuilder) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}
