package service

import (
	"context"
	"strings"

	"github.com/damoang/angple-rules/internal/common"
	"github.com/damoang/angple-rules/internal/domain"
	"github.com/damoang/angple-rules/internal/repository"
)

// ListFilter listing view
type ListFilter string

const (
	FilterGlobal   ListFilter = "global"
	FilterActive   ListFilter = "active"
	FilterProposed ListFilter = "proposed"
	FilterDraft    ListFilter = "draft"
	FilterAll      ListFilter = "all"
)

// EntryKind where a listing entry comes from
type EntryKind string

const (
	EntryOriginal EntryKind = "original"
	EntryAdoption EntryKind = "adoption"
	EntryChapter  EntryKind = "chapter"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// ListQuery listing request. Cursor, when set, takes precedence over Page.
type ListQuery struct {
	Forum  domain.ForumRef
	Filter ListFilter
	Search string
	Page   int
	Limit  int
	Cursor string
}

// ListEntry one row of a merged listing
type ListEntry struct {
	Kind        EntryKind            `json:"kind"`
	Rule        *domain.Rule         `json:"rule"`
	Adoption    *domain.RuleAdoption `json:"adoption,omitempty"`
	ChapterRule *domain.ChapterRule  `json:"chapter_rule,omitempty"`

	key repository.Keyset
}

// ListResult page of entries
type ListResult struct {
	Entries    []*ListEntry       `json:"data"`
	Pagination *common.Pagination `json:"pagination"`
}

// ListingService merged listings of originals, adoptions and chapter rules
type ListingService struct {
	store *repository.Store
	roles RoleResolver
}

// NewListingService creates a new ListingService
func NewListingService(store *repository.Store, roles RoleResolver) *ListingService {
	return &ListingService{store: store, roles: roles}
}

// List returns one page of the requested view, newest first
func (s *ListingService) List(ctx context.Context, userID string, q ListQuery) (*ListResult, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > maxPageLimit {
		q.Limit = defaultPageLimit
	}
	q.Search = strings.TrimSpace(q.Search)

	var after *repository.Keyset
	if q.Cursor != "" {
		k, err := decodeCursor(q.Cursor)
		if err != nil {
			return nil, err
		}
		after = k
	}

	sources, err := s.sources(ctx, userID, q)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, src := range sources {
		n, err := src.count()
		if err != nil {
			return nil, fail("count "+src.name, err)
		}
		total += n
	}

	skip := 0
	if after == nil {
		skip = (q.Page - 1) * q.Limit
	}
	m := newMerger(sources, after, q.Limit)
	entries := make([]*ListEntry, 0, q.Limit)
	for i := 0; len(entries) < q.Limit; i++ {
		e, err := m.next()
		if err != nil {
			return nil, fail("list rules", err)
		}
		if e == nil {
			break
		}
		if i >= skip {
			entries = append(entries, e)
		}
	}

	pagination := common.NewPagination(q.Page, q.Limit, total)
	if len(entries) == q.Limit {
		more, err := m.next()
		if err != nil {
			return nil, fail("list rules", err)
		}
		if more != nil {
			pagination.NextCursor = encodeCursor(entries[len(entries)-1].key)
		}
	}
	return &ListResult{Entries: entries, Pagination: pagination}, nil
}

// sources builds the streams of a view after checking the caller may see it
func (s *ListingService) sources(ctx context.Context, userID string, q ListQuery) ([]source, error) {
	if q.Filter == FilterGlobal {
		return []source{s.ruleSource(ctx, repository.RuleFilter{
			Clauses: []repository.RuleClause{{
				Statuses:   []domain.RuleStatus{domain.RulePublished},
				PublicOnly: true,
			}},
			Search: q.Search,
		})}, nil
	}

	if q.Forum.IsGlobal() || !q.Forum.Valid() {
		return nil, common.Invalid("forum reference must name exactly one club, node or chapter")
	}
	forum := q.Forum
	m, err := resolveMembership(ctx, s.roles, forum, userID)
	if err != nil {
		return nil, err
	}
	published := []domain.RuleStatus{domain.RulePublished}

	switch q.Filter {
	case FilterActive:
		return []source{s.ruleSource(ctx, repository.RuleFilter{
			Forum: &forum,
			Clauses: []repository.RuleClause{{
				Statuses:   published,
				ActiveOnly: true,
				PublicOnly: !allowed(m, actionView),
			}},
			Search: q.Search,
		})}, nil

	case FilterProposed:
		if !allowed(m, actionReview) {
			return nil, common.ErrProposalsHidden
		}
		return []source{s.ruleSource(ctx, repository.RuleFilter{
			Forum: &forum,
			Clauses: []repository.RuleClause{{
				Statuses: []domain.RuleStatus{domain.RuleProposed},
			}},
			Search: q.Search,
		})}, nil

	case FilterDraft:
		if userID == "" {
			return nil, common.ErrMissingCaller
		}
		return []source{s.ruleSource(ctx, repository.RuleFilter{
			Forum:   &forum,
			Clauses: []repository.RuleClause{ownDrafts(userID)},
			Search:  q.Search,
		})}, nil

	case FilterAll:
		if !allowed(m, actionView) {
			return nil, common.ErrForumMembersOnly
		}
		manager := allowed(m, actionManage)

		originals := repository.RuleClause{Statuses: published, ArchivedVisibleTo: userID}
		adopted := []domain.AdoptionStatus{domain.AdoptionPublished}
		chapter := []domain.RuleStatus{domain.RulePublished}
		if manager {
			originals = repository.RuleClause{Statuses: published, IncludeArchived: true}
			adopted = append(adopted, domain.AdoptionArchived, domain.AdoptionProposed)
			chapter = append(chapter, domain.RuleArchived)
		}

		sources := []source{s.ruleSource(ctx, repository.RuleFilter{
			Forum:   &forum,
			Clauses: []repository.RuleClause{originals, ownDrafts(userID)},
			Search:  q.Search,
		})}
		switch forum.Type {
		case domain.ForumClub, domain.ForumNode:
			sources = append(sources, s.adoptionSource(ctx, repository.AdoptionFilter{
				Forum:    forum,
				Statuses: adopted,
				Search:   q.Search,
			}))
		case domain.ForumChapter:
			sources = append(sources, s.chapterSource(ctx, repository.ChapterRuleFilter{
				ChapterID: forum.ID,
				Statuses:  chapter,
				Search:    q.Search,
			}))
		}
		return sources, nil

	default:
		return nil, common.ErrInvalidFilter
	}
}

func ownDrafts(userID string) repository.RuleClause {
	return repository.RuleClause{
		Statuses:        []domain.RuleStatus{domain.RuleDraft},
		CreatedBy:       userID,
		IncludeArchived: true,
	}
}

func (s *ListingService) ruleSource(ctx context.Context, f repository.RuleFilter) source {
	repo := s.store.WithContext(ctx).Rules
	return source{
		name: "rules",
		fetch: func(after *repository.Keyset, limit int) ([]*ListEntry, error) {
			rules, err := repo.ListPage(f, after, limit)
			if err != nil {
				return nil, err
			}
			entries := make([]*ListEntry, len(rules))
			for i, r := range rules {
				entries[i] = &ListEntry{
					Kind: EntryOriginal,
					Rule: r,
					key:  repository.Keyset{CreatedAt: r.CreatedAt, ID: r.ID},
				}
			}
			return entries, nil
		},
		count: func() (int64, error) { return repo.Count(f) },
	}
}

func (s *ListingService) adoptionSource(ctx context.Context, f repository.AdoptionFilter) source {
	repo := s.store.WithContext(ctx).Adoptions
	return source{
		name: "adoptions",
		fetch: func(after *repository.Keyset, limit int) ([]*ListEntry, error) {
			adoptions, err := repo.ListPage(f, after, limit)
			if err != nil {
				return nil, err
			}
			entries := make([]*ListEntry, len(adoptions))
			for i, a := range adoptions {
				rule := a.Rule
				a.Rule = nil
				entries[i] = &ListEntry{
					Kind:     EntryAdoption,
					Rule:     rule,
					Adoption: a,
					key:      repository.Keyset{CreatedAt: a.CreatedAt, ID: a.ID},
				}
			}
			return entries, nil
		},
		count: func() (int64, error) { return repo.Count(f) },
	}
}

func (s *ListingService) chapterSource(ctx context.Context, f repository.ChapterRuleFilter) source {
	repo := s.store.WithContext(ctx).ChapterRules
	return source{
		name: "chapter rules",
		fetch: func(after *repository.Keyset, limit int) ([]*ListEntry, error) {
			records, err := repo.ListPage(f, after, limit)
			if err != nil {
				return nil, err
			}
			entries := make([]*ListEntry, len(records))
			for i, cr := range records {
				rule := cr.Rule
				cr.Rule = nil
				entries[i] = &ListEntry{
					Kind:        EntryChapter,
					Rule:        rule,
					ChapterRule: cr,
					key:         repository.Keyset{CreatedAt: cr.CreatedAt, ID: cr.ID},
				}
			}
			return entries, nil
		},
		count: func() (int64, error) { return repo.Count(f) },
	}
}
