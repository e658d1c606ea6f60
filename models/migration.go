package models

import (
	"github.com/hohbackend/budget_backend/config"
)

// MigrateTable creates or updates every table. Parents are listed before the
// rows that reference them so foreign keys can be created.
func MigrateTable() error {
	db := config.GetDB()

	return db.AutoMigrate(
		&User{},
		&Project{}, &ProjectVersion{},
		&ProjectCost{}, &ProjectCostVersion{},
		&ProjectOverhead{}, &ProjectOverheadVersion{},
		&Activity{}, &BudgetEvent{},
		&ChatSession{}, &Conversation{}, &Message{}, &CostProposal{},
		&NewsArticle{}, &NewsFetchLog{}, &Alert{},
	)
}
