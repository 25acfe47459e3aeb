package domain

import (
	"strconv"
	"strings"
)

// ValidateQuestion checks the Question invariants. index is the question's
// position in whatever list it arrived in and is echoed in the error.
func ValidateQuestion(q Question, index int) error {
	if strings.TrimSpace(q.Text) == "" {
		return &ValidationError{Field: "text", Index: index, Reason: "question text is empty"}
	}
	if len(q.Answers) < 2 {
		return &ValidationError{Field: "answers", Index: index, Reason: "at least two answers required"}
	}
	seen := make(map[string]struct{}, len(q.Answers))
	for _, a := range q.Answers {
		if _, dup := seen[a]; dup {
			return &ValidationError{Field: "answers", Index: index, Reason: "duplicate answer " + strconv.Quote(a)}
		}
		seen[a] = struct{}{}
	}
	if _, ok := seen[q.CorrectAnswer]; !ok {
		return &ValidationError{Field: "correctAnswer", Index: index, Reason: "not one of the answers"}
	}
	return nil
}

// ValidatePool validates every question in a pool.
func ValidatePool(pool []Question) error {
	for i, q := range pool {
		if err := ValidateQuestion(q, i); err != nil {
			return err
		}
	}
	return nil
}
