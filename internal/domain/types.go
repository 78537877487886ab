package domain

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StringList string slice stored as a JSON text column
type StringList []string

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	return valueJSON(l, "[]")
}

// Scan implements sql.Scanner
func (l *StringList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// AdoptedForum denormalized summary of an adoption, kept on the adopted rule
type AdoptedForum struct {
	ForumID    string    `json:"forum_id"`
	AdoptionID string    `json:"adoption_id"`
	AdoptedBy  string    `json:"adopted_by"`
	AdoptedAt  time.Time `json:"adopted_at"`
}

// AdoptedForumList list of adoption summaries stored as JSON
type AdoptedForumList []AdoptedForum

// Value implements driver.Valuer
func (l AdoptedForumList) Value() (driver.Value, error) {
	return valueJSON(l, "[]")
}

// Scan implements sql.Scanner
func (l *AdoptedForumList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// Without returns the list minus the entry for adoptionID
func (l AdoptedForumList) Without(adoptionID string) AdoptedForumList {
	out := make(AdoptedForumList, 0, len(l))
	for _, a := range l {
		if a.AdoptionID != adoptionID {
			out = append(out, a)
		}
	}
	return out
}

func valueJSON(v interface{}, empty string) (driver.Value, error) {
	// HTML escaping off so stored text stays searchable
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	b := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

func scanJSON(src interface{}, dest interface{}) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dest)
}
