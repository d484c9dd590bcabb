package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PGFields is the subset of a Postgres error worth logging.
type PGFields struct {
	Code       string
	Constraint string
	Table      string
	Detail     string
}

// Trace flattens an error for logs and dev-only responses.
type Trace struct {
	Message string
	Code    Code
	Chain   []string
	PG      *PGFields
}

// Inspect walks the wrap chain of err. Both pgx and lib/pq errors are
// recognised because goose runs on database/sql while GORM runs on pgx.
func Inspect(err error) Trace {
	if err == nil {
		return Trace{}
	}

	t := Trace{Message: err.Error()}
	if typed := As(err); typed != nil {
		t.Code = typed.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		t.Chain = append(t.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		t.PG = &PGFields{Code: pgxErr.Code, Constraint: pgxErr.ConstraintName, Table: pgxErr.TableName, Detail: pgxErr.Detail}
	case errors.As(err, &pqErr):
		t.PG = &PGFields{Code: string(pqErr.Code), Constraint: pqErr.Constraint, Table: pqErr.Table, Detail: pqErr.Detail}
	}
	return t
}

// LogFields renders the trace as structured log fields.
func (t Trace) LogFields() map[string]any {
	fields := map[string]any{
		"error":       t.Message,
		"error_code":  t.Code,
		"error_chain": t.Chain,
	}
	if t.PG != nil {
		fields["pg_code"] = t.PG.Code
		fields["pg_constraint"] = t.PG.Constraint
		fields["pg_table"] = t.PG.Table
		fields["pg_detail"] = t.PG.Detail
	}
	return fields
}
