package dbcontext

import sq "github.com/Masterminds/squirrel"

// Dialect captures the SQL differences the context cares about.
type Dialect struct {
	Name        string
	Placeholder sq.PlaceholderFormat

	// Returning is true when INSERT ... RETURNING reports generated keys; otherwise
	// sql.Result.LastInsertId is used.
	Returning bool
}

var (
	Postgres = Dialect{Name: "postgresql", Placeholder: sq.Dollar, Returning: true}
	MySQL    = Dialect{Name: "mysql", Placeholder: sq.Question}
)

func (d Dialect) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(d.Placeholder)
}
