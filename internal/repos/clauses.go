package repos

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// forUpdateClause degrades to a no-op on sqlite, which serializes writers on
// its own; postgres gets a real SELECT ... FOR UPDATE.
func forUpdateClause(tx *gorm.DB) clause.Expression {
	if tx != nil && tx.Dialector != nil && tx.Dialector.Name() == "sqlite" {
		return clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "1 = 1"}}}
	}
	return clause.Locking{Strength: "UPDATE"}
}
