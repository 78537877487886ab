package service

import (
	"sync"
	"testing"

	"github.com/damoang/angple-rules/internal/common"
	"github.com/damoang/angple-rules/internal/domain"
	"github.com/stretchr/testify/suite"
)

type AdoptionServiceSuite struct {
	suite.Suite
	f      *fixture
	rule   *domain.Rule
	target domain.ForumRef
}

func (s *AdoptionServiceSuite) SetupTest() {
	s.f = newFixture(s.T())
	s.rule = s.f.publish(s.T(), domain.Club("origin"), "Respect everyone")
	s.target = domain.Club("c1")
	s.f.join(s.T(), s.target, "member", domain.RoleMember)
	s.f.join(s.T(), s.target, "admin", domain.RoleAdmin)
	s.f.join(s.T(), s.target, "mod", domain.RoleModerator)
}

func TestAdoptionServiceSuite(t *testing.T) {
	suite.Run(t, new(AdoptionServiceSuite))
}

func (s *AdoptionServiceSuite) adopt(userID, message string) (*domain.RuleAdoption, error) {
	return s.f.adoptions.Adopt(s.f.ctx, userID, AdoptInput{RuleID: s.rule.ID, Target: s.target, Message: message})
}

func (s *AdoptionServiceSuite) TestMemberProposes() {
	a, err := s.adopt("member", "fits our club")
	s.Require().NoError(err)

	s.Equal(domain.AdoptionProposed, a.Status)
	s.Nil(a.AcceptedBy)
	s.Equal("fits our club", a.Message)
	s.Equal("member", a.ProposedBy)
	s.Equal(int64(0), s.f.countRows(s.T(), &domain.FeedEntry{}, "adoption_id = ?", a.ID))

	rule := s.f.loadRule(s.T(), s.rule.ID)
	s.Require().Len(rule.AdoptedClubs, 1)
	s.Equal(a.ID, rule.AdoptedClubs[0].AdoptionID)
	s.Equal("c1", rule.AdoptedClubs[0].ForumID)
}

func (s *AdoptionServiceSuite) TestMemberNeedsMessage() {
	_, err := s.adopt("member", "  ")
	s.ErrorIs(err, common.ErrMessageRequired)
}

func (s *AdoptionServiceSuite) TestManagerAdoptsDirectly() {
	a, err := s.adopt("mod", "")
	s.Require().NoError(err)

	s.Equal(domain.AdoptionPublished, a.Status)
	s.Require().NotNil(a.AcceptedBy)
	s.Equal("mod", *a.AcceptedBy)
	s.Equal(int64(1), s.f.countRows(s.T(), &domain.FeedEntry{},
		"adoption_id = ? AND forum_id = ? AND content_id = ?", a.ID, "c1", s.rule.ID))
}

func (s *AdoptionServiceSuite) TestSecondAdoptionConflicts() {
	first, err := s.adopt("member", "please")
	s.Require().NoError(err)
	before := s.f.loadRule(s.T(), s.rule.ID).AdoptedClubs

	_, err = s.adopt("admin", "")
	s.ErrorIs(err, common.ErrConflict)
	s.ErrorIs(err, common.ErrAlreadyAdopted)

	s.Equal(int64(1), s.f.countRows(s.T(), &domain.RuleAdoption{}, ""))
	s.Equal(before, s.f.loadRule(s.T(), s.rule.ID).AdoptedClubs)
	s.Equal(first.ID, before[0].AdoptionID)
}

func (s *AdoptionServiceSuite) TestUniqueIndexBacksTheCheck() {
	_, err := s.adopt("admin", "")
	s.Require().NoError(err)

	err = s.f.db.Create(&domain.RuleAdoption{
		ID:        "dup",
		RuleID:    s.rule.ID,
		ForumType: s.target.Type,
		ForumID:   s.target.ID,
		LiveSlot:  domain.LiveSlotValue(),
		Status:    domain.AdoptionProposed,
	}).Error
	s.Error(err)

	// deleted rows leave the slot free
	err = s.f.db.Create(&domain.RuleAdoption{
		ID:        "old",
		RuleID:    s.rule.ID,
		ForumType: s.target.Type,
		ForumID:   s.target.ID,
		Status:    domain.AdoptionRejected,
		IsDeleted: true,
	}).Error
	s.NoError(err)
}

func (s *AdoptionServiceSuite) TestRejections() {
	_, err := s.f.adoptions.Adopt(s.f.ctx, "admin", AdoptInput{RuleID: s.rule.ID, Target: domain.ChapterForum("ch1")})
	s.ErrorIs(err, common.ErrInvalidForum)

	_, err = s.f.adoptions.Adopt(s.f.ctx, "owner-origin", AdoptInput{RuleID: s.rule.ID, Target: domain.Club("origin")})
	s.ErrorIs(err, common.ErrSelfAdoption)

	_, err = s.f.adoptions.Adopt(s.f.ctx, "stranger", AdoptInput{RuleID: s.rule.ID, Target: s.target, Message: "hi"})
	s.ErrorIs(err, common.ErrNotMember)

	_, err = s.f.adoptions.Adopt(s.f.ctx, "admin", AdoptInput{RuleID: "missing", Target: s.target})
	s.ErrorIs(err, common.ErrRuleNotFound)

	_, err = s.f.adoptions.Adopt(s.f.ctx, "", AdoptInput{RuleID: s.rule.ID, Target: s.target})
	s.ErrorIs(err, common.ErrUnauthorized)

	_, err = s.f.rules.SetVisibility(s.f.ctx, "owner-origin", s.rule.ID, false)
	s.Require().NoError(err)
	_, err = s.adopt("admin", "")
	s.ErrorIs(err, common.ErrNotAdoptable)
}

func (s *AdoptionServiceSuite) TestReviewLifecycle() {
	a, err := s.adopt("member", "please")
	s.Require().NoError(err)

	_, err = s.f.adoptions.Review(s.f.ctx, "mod", a.ID, "accept")
	s.ErrorIs(err, common.ErrNotManager)

	accepted, err := s.f.adoptions.Review(s.f.ctx, "admin", a.ID, "accept")
	s.Require().NoError(err)
	s.Equal(domain.AdoptionPublished, accepted.Status)
	s.Require().NotNil(accepted.AcceptedBy)
	s.Equal("admin", *accepted.AcceptedBy)
	s.Equal(int64(1), s.f.countRows(s.T(), &domain.FeedEntry{}, "adoption_id = ?", a.ID))

	_, err = s.f.adoptions.Review(s.f.ctx, "admin", a.ID, "accept")
	s.ErrorIs(err, common.ErrInvalidTransition)

	removed, err := s.f.adoptions.Remove(s.f.ctx, "admin", a.ID, "removeadoption")
	s.Require().NoError(err)
	s.Equal(domain.AdoptionRejected, removed.Status)
	s.Equal(int64(1), s.f.countRows(s.T(), &domain.FeedEntry{}, "adoption_id = ? AND state = ?", a.ID, domain.FeedDeleted))

	readopted, err := s.f.adoptions.Remove(s.f.ctx, "admin", a.ID, "re-adopt")
	s.Require().NoError(err)
	s.Equal(domain.AdoptionPublished, readopted.Status)
	s.Equal(int64(1), s.f.countRows(s.T(), &domain.FeedEntry{}, "adoption_id = ?", a.ID), "re-adopt reuses the feed entry")

	archived, err := s.f.adoptions.Archive(s.f.ctx, "admin", a.ID, "archive")
	s.Require().NoError(err)
	s.Equal(domain.AdoptionArchived, archived.Status)

	history, err := s.f.adoptions.History(s.f.ctx, "member", a.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 5)
	s.Equal(domain.AdoptionProposed, history[0].ToStatus)
	s.Equal(domain.AdoptionArchived, history[4].ToStatus)
	s.Equal(domain.AdoptionPublished, history[4].FromStatus)
}

func (s *AdoptionServiceSuite) TestRejectedProposalReadopted() {
	a, err := s.adopt("member", "please")
	s.Require().NoError(err)

	_, err = s.f.adoptions.Review(s.f.ctx, "admin", a.ID, "reject")
	s.Require().NoError(err)
	s.Equal(int64(0), s.f.countRows(s.T(), &domain.FeedEntry{}, "adoption_id = ?", a.ID))

	readopted, err := s.f.adoptions.Remove(s.f.ctx, "admin", a.ID, "re-adopt")
	s.Require().NoError(err)
	s.Equal(domain.AdoptionPublished, readopted.Status)
	s.Equal(int64(1), s.f.countRows(s.T(), &domain.FeedEntry{}, "adoption_id = ? AND state = ?", a.ID, domain.FeedPublished))
}

func (s *AdoptionServiceSuite) TestDeleteFreesTheSlot() {
	a, err := s.adopt("admin", "")
	s.Require().NoError(err)

	s.ErrorIs(s.f.adoptions.Delete(s.f.ctx, "member", a.ID), common.ErrNotManager)
	s.Require().NoError(s.f.adoptions.Delete(s.f.ctx, "admin", a.ID))

	s.Empty(s.f.loadRule(s.T(), s.rule.ID).AdoptedClubs)
	s.Equal(int64(1), s.f.countRows(s.T(), &domain.FeedEntry{}, "adoption_id = ? AND state = ?", a.ID, domain.FeedDeleted))
	_, err = s.f.adoptions.History(s.f.ctx, "admin", a.ID)
	s.ErrorIs(err, common.ErrAdoptionNotFound)

	again, err := s.adopt("admin", "")
	s.Require().NoError(err)
	s.NotEqual(a.ID, again.ID)
	s.Equal(int64(1), s.f.countRows(s.T(), &domain.RuleAdoption{}, "is_deleted = ?", false))
}

func (s *AdoptionServiceSuite) TestNodeAdoptionUsesNodeList() {
	node := domain.Node("n1")
	s.f.join(s.T(), node, "nodeadmin", domain.RoleOwner)

	a, err := s.f.adoptions.Adopt(s.f.ctx, "nodeadmin", AdoptInput{RuleID: s.rule.ID, Target: node})
	s.Require().NoError(err)

	rule := s.f.loadRule(s.T(), s.rule.ID)
	s.Empty(rule.AdoptedClubs)
	s.Require().Len(rule.AdoptedNodes, 1)
	s.Equal(a.ID, rule.AdoptedNodes[0].AdoptionID)
}

func (s *AdoptionServiceSuite) TestConcurrentAcceptPublishesOnce() {
	a, err := s.adopt("member", "please")
	s.Require().NoError(err)
	s.f.join(s.T(), s.target, "owner", domain.RoleOwner)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, reviewer := range []string{"admin", "owner"} {
		wg.Add(1)
		go func(i int, reviewer string) {
			defer wg.Done()
			_, errs[i] = s.f.adoptions.Review(s.f.ctx, reviewer, a.ID, "accept")
		}(i, reviewer)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		s.ErrorIs(err, common.ErrInvalidTransition)
	}
	s.Equal(1, succeeded)
	s.Equal(int64(1), s.f.countRows(s.T(), &domain.FeedEntry{}, "adoption_id = ?", a.ID))
	s.Equal(int64(2), s.f.countRows(s.T(), &domain.AdoptionStatusChange{}, "adoption_id = ?", a.ID))
}
