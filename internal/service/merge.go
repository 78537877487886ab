package service

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/damoang/angple-rules/internal/common"
	"github.com/damoang/angple-rules/internal/repository"
)

// source one listing stream already ordered by (created_at DESC, id DESC)
type source struct {
	name  string
	fetch func(after *repository.Keyset, limit int) ([]*ListEntry, error)
	count func() (int64, error)
}

// stream buffered reader over a source, refilled batch by batch
type stream struct {
	src   source
	batch int
	buf   []*ListEntry
	after *repository.Keyset
	done  bool
}

func (s *stream) head() (*ListEntry, error) {
	if len(s.buf) == 0 && !s.done {
		rows, err := s.src.fetch(s.after, s.batch)
		if err != nil {
			return nil, err
		}
		if len(rows) < s.batch {
			s.done = true
		}
		if len(rows) > 0 {
			last := rows[len(rows)-1].key
			s.after = &last
		}
		s.buf = rows
	}
	if len(s.buf) == 0 {
		return nil, nil
	}
	return s.buf[0], nil
}

func (s *stream) pop() {
	s.buf = s.buf[1:]
}

// merger k-way merge of streams; memory stays at one batch per source
type merger struct {
	streams []*stream
}

func newMerger(sources []source, after *repository.Keyset, batch int) *merger {
	m := &merger{streams: make([]*stream, len(sources))}
	for i, src := range sources {
		m.streams[i] = &stream{src: src, batch: batch, after: after}
	}
	return m
}

// next returns the next entry in merged order, nil when every stream is exhausted
func (m *merger) next() (*ListEntry, error) {
	var best *stream
	var bestEntry *ListEntry
	for _, s := range m.streams {
		e, err := s.head()
		if err != nil {
			return nil, err
		}
		if e == nil {
			continue
		}
		if bestEntry == nil || before(e.key, bestEntry.key) {
			best, bestEntry = s, e
		}
	}
	if best != nil {
		best.pop()
	}
	return bestEntry, nil
}

// before reports whether a sorts ahead of b: newer first, larger id on ties
func before(a, b repository.Keyset) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// encodeCursor opaque continuation token of a keyset
func encodeCursor(k repository.Keyset) string {
	raw := strconv.FormatInt(k.CreatedAt.UnixNano(), 10) + "|" + k.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (*repository.Keyset, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, common.ErrInvalidCursor
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, common.ErrInvalidCursor
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, common.ErrInvalidCursor
	}
	return &repository.Keyset{CreatedAt: time.Unix(0, nanos).UTC(), ID: id}, nil
}
