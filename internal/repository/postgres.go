package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dharsanguruparan/PartnerGate/internal/database"
)

const uniqueViolation = "23505"

// PostgresStore is the Store backed by a database/sql handle over pgx.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Applications() Applications {
	return NewApplicationRepository(s.db)
}

func (s *PostgresStore) Terms() TermsRecords {
	return NewTermsRepository(s.db)
}

// Atomic runs fn inside one transaction.
func (s *PostgresStore) Atomic(ctx context.Context, fn func(ctx context.Context, apps Applications, terms TermsRecords) error) error {
	return database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		return fn(ctx, NewApplicationRepository(tx), NewTermsRepository(tx))
	})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// placeholders returns "$start, $start+1, ..." for n parameters.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(start+i)
	}
	return strings.Join(parts, ", ")
}
