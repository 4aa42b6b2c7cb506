package persistence

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"triage_server/core/port/out"
)

// Common persistence errors
var (
	ErrNotFound  = out.ErrNotFound
	ErrDuplicate = out.ErrDuplicate
)

const (
	pgForeignKeyViolation = "23503"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isForeignKeyViolation(err error) bool {
	return pgCode(err) == pgForeignKeyViolation
}

// nullableJSON converts a raw payload into a jsonb parameter.
func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

type countRow struct {
	Key   string `db:"key"`
	Count int64  `db:"count"`
}

func countMap(rows []countRow) map[string]int64 {
	m := make(map[string]int64, len(rows))
	for _, r := range rows {
		m[r.Key] = r.Count
	}
	return m
}
