package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/damoang/angple-rules/internal/domain"
	"github.com/damoang/angple-rules/internal/migration"
	"github.com/damoang/angple-rules/internal/repository"
	"github.com/damoang/angple-rules/pkg/storage"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	// one connection: every handle sees the same in-memory database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migration.Run(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// testClock advances one second per reading so listings have a stable order
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

// memFiles in-memory FileStore
type memFiles struct {
	mu         sync.Mutex
	objects    map[string][]byte
	deleted    []string
	failUpload bool
	seq        int
}

func newMemFiles() *memFiles {
	return &memFiles{objects: make(map[string][]byte)}
}

func (m *memFiles) Upload(_ context.Context, data []byte, name, _, _ string) (*storage.StoredFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpload {
		return nil, errors.New("storage unavailable")
	}
	m.seq++
	url := fmt.Sprintf("https://cdn.test/attachments/%d-%s", m.seq, name)
	m.objects[url] = data
	return &storage.StoredFile{URL: url, Filename: name}, nil
}

func (m *memFiles) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, url)
	m.deleted = append(m.deleted, url)
	return nil
}

func (m *memFiles) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// failingFeed FeedGateway whose writes always fail
type failingFeed struct{}

func (failingFeed) CreateFeed(context.Context, *gorm.DB, *domain.FeedEntry) error {
	return errors.New("feed down")
}

func (failingFeed) UpdateFeed(context.Context, *gorm.DB, string, domain.FeedState) error {
	return errors.New("feed down")
}

type fixture struct {
	ctx         context.Context
	db          *gorm.DB
	store       *repository.Store
	members     *repository.MembershipRepository
	quota       *repository.QuotaRepository
	feed        *repository.FeedRepository
	files       *memFiles
	clock       *testClock
	rules       *RuleService
	adoptions   *AdoptionService
	propagation *PropagationService
	listing     *ListingService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithQuota(t, 100)
}

func newFixtureWithQuota(t *testing.T, max int) *fixture {
	t.Helper()
	db := setupTestDB(t)
	f := &fixture{
		ctx:     context.Background(),
		db:      db,
		store:   repository.NewStore(db),
		members: repository.NewMembershipRepository(db),
		quota:   repository.NewQuotaRepository(db, max),
		feed:    repository.NewFeedRepository(db),
		files:   newMemFiles(),
		clock:   newTestClock(),
	}
	f.propagation = NewPropagationService(f.store, f.members)
	f.propagation.SetClock(f.clock.now)
	f.rules = NewRuleService(f.store, f.members, f.quota, f.feed, f.files, f.propagation)
	f.rules.SetClock(f.clock.now)
	f.adoptions = NewAdoptionService(f.store, f.members, f.feed)
	f.adoptions.SetClock(f.clock.now)
	f.listing = NewListingService(f.store, f.members)
	return f
}

func (f *fixture) join(t *testing.T, forum domain.ForumRef, userID string, role domain.Role) {
	t.Helper()
	require.NoError(t, f.members.Upsert(f.ctx, forum, userID, userID, role))
}

func (f *fixture) chapter(t *testing.T, id, clubID string, status domain.ChapterStatus) {
	t.Helper()
	require.NoError(t, f.db.Create(&domain.Chapter{
		ID:        id,
		ClubID:    clubID,
		Name:      id,
		Status:    status,
		CreatedAt: f.clock.now(),
	}).Error)
}

// publish creates a public published rule in forum through a fresh owner account
func (f *fixture) publish(t *testing.T, forum domain.ForumRef, title string) *domain.Rule {
	t.Helper()
	owner := "owner-" + forum.ID
	f.join(t, forum, owner, domain.RoleOwner)
	rule, err := f.rules.Create(f.ctx, owner, CreateRuleInput{Forum: forum, Title: title, IsPublic: true})
	require.NoError(t, err)
	require.Equal(t, domain.RulePublished, rule.PublishedStatus)
	return rule
}

func (f *fixture) countRows(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := f.db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func (f *fixture) quotaUsed(t *testing.T, userID string) int {
	t.Helper()
	n, err := f.quota.Used(f.ctx, userID)
	require.NoError(t, err)
	return n
}

func (f *fixture) loadRule(t *testing.T, id string) *domain.Rule {
	t.Helper()
	var rule domain.Rule
	require.NoError(t, f.db.Where("id = ?", id).First(&rule).Error)
	return &rule
}
