package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Store bundles the repositories bound to one gorm handle (plain DB or transaction)
type Store struct {
	db *gorm.DB

	Rules        RuleRepository
	Adoptions    AdoptionRepository
	Chapters     ChapterRepository
	ChapterRules ChapterRuleRepository
}

// NewStore creates a Store on db
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:           db,
		Rules:        NewRuleRepository(db),
		Adoptions:    NewAdoptionRepository(db),
		Chapters:     NewChapterRepository(db),
		ChapterRules: NewChapterRuleRepository(db),
	}
}

// DB returns the underlying handle, the open transaction inside Transaction
func (s *Store) DB() *gorm.DB {
	return s.db
}

// WithContext returns a Store whose queries carry ctx
func (s *Store) WithContext(ctx context.Context) *Store {
	return NewStore(s.db.WithContext(ctx))
}

// Transaction runs fn inside one database transaction. Any error returned by
// fn (or a panic) rolls the transaction back; the error is returned as is.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

// Keyset position in a (created_at DESC, id DESC) ordered listing
type Keyset struct {
	CreatedAt time.Time
	ID        string
}

// IsDuplicateKey reports whether err is a unique constraint violation
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	// mysql 1062 / sqlite UNIQUE constraint
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}

// IsNotFound reports whether err is gorm's record-not-found error
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// likePattern lower-cased substring pattern using '!' as the escape character
func likePattern(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}

// searchClause case-insensitive substring match over the searchable rule columns.
// tags is JSON text, so its pattern drops the array punctuation and only
// matches inside tag values.
func searchClause(table, search string) (string, []interface{}) {
	cols := []string{"title", "description", "category", "significance"}
	parts := make([]string, 0, len(cols)+1)
	args := make([]interface{}, 0, len(cols)+1)
	p := likePattern(search)
	for _, c := range cols {
		parts = append(parts, "LOWER("+table+"."+c+") LIKE ? ESCAPE '!'")
		args = append(args, p)
	}
	if tag := jsonPunct.Replace(search); strings.TrimSpace(tag) != "" {
		parts = append(parts, "LOWER("+table+".tags) LIKE ? ESCAPE '!'")
		args = append(args, likePattern(tag))
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

var jsonPunct = strings.NewReplacer("[", "", "]", "", `"`, "", ",", "", `\`, "")

// keysetClause rows strictly after k in (created_at DESC, id DESC) order
func keysetClause(table string, k *Keyset) (string, []interface{}) {
	return "(" + table + ".created_at < ? OR (" + table + ".created_at = ? AND " + table + ".id < ?))",
		[]interface{}{k.CreatedAt, k.CreatedAt, k.ID}
}

func keysetOrder(table string) string {
	return table + ".created_at DESC, " + table + ".id DESC"
}
