package domain

import (
	"fmt"
	"strings"
)

// Question is one entry of a message's question section. ID carries the
// transaction ID of the message it came from.
type Question struct {
	ID    uint16
	Name  string
	Type  RRType
	Class RRClass
}

// NewQuestion constructs a Question and validates its fields.
func NewQuestion(id uint16, name string, rrtype RRType, class RRClass) (Question, error) {
	q := Question{
		ID:    id,
		Name:  name,
		Type:  rrtype,
		Class: class,
	}
	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	return q, nil
}

// Validate checks that the question can be answered or forwarded.
func (q Question) Validate() error {
	if q.Name == "" {
		return fmt.Errorf("query name must not be empty")
	}
	if q.Type == 0 {
		return fmt.Errorf("query type must not be zero")
	}
	if q.Class == 0 {
		return fmt.Errorf("query class must not be zero")
	}
	return nil
}

// SameAs reports whether two questions ask for the same name, type and
// class. Names compare case-insensitively and ignore a trailing dot; IDs are
// not compared.
func (q Question) SameAs(o Question) bool {
	return q.Type == o.Type && q.Class == o.Class &&
		strings.EqualFold(strings.TrimSuffix(q.Name, "."), strings.TrimSuffix(o.Name, "."))
}
