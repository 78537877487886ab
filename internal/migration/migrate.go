package migration

import (
	"github.com/damoang/angple-rules/internal/domain"
	"gorm.io/gorm"
)

// Models every table owned by the rules service
func Models() []interface{} {
	return []interface{}{
		&domain.Rule{},
		&domain.RuleVersion{},
		&domain.RuleAttachment{},
		&domain.RuleReaction{},
		&domain.RuleAdoption{},
		&domain.AdoptionStatusChange{},
		&domain.ChapterRule{},
		&domain.Chapter{},
		&domain.ForumMember{},
		&domain.FeedEntry{},
		&domain.QuotaCounter{},
	}
}

// Run executes AutoMigrate for the rules tables.
// 테이블 없으면 생성, 있으면 컬럼/인덱스만 보강
func Run(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

type tabler interface {
	TableName() string
}

// Tables names of the tables Run manages, in migration order
func Tables() []string {
	models := Models()
	names := make([]string, 0, len(models))
	for _, m := range models {
		if t, ok := m.(tabler); ok {
			names = append(names, t.TableName())
		}
	}
	return names
}

// Missing returns the tables that do not exist yet
func Missing(db *gorm.DB) []string {
	var missing []string
	for _, m := range Models() {
		if !db.Migrator().HasTable(m) {
			missing = append(missing, m.(tabler).TableName())
		}
	}
	return missing
}
