package domain

import "time"

// Question models an MCQ question. CorrectAnswer must be one of Answers.
// OriginalIndex, when set, is the question's stable position in the full
// quiz pool; the session-local position is used for display when it is nil.
type Question struct {
	Text          string   `json:"text"`
	Answers       []string `json:"answers"`
	CorrectAnswer string   `json:"correctAnswer"`
	OriginalIndex *int     `json:"originalIndex,omitempty"`
}

// QuestionState tracks one question within an active session. SelectedAnswer
// is write-once: once non-nil it never changes for the session's lifetime.
type QuestionState struct {
	SelectedAnswer *string `json:"selectedAnswer"`
	IsCorrect      *bool   `json:"isCorrect"`
	Flagged        bool    `json:"flagged"`
	FlagReason     string  `json:"flagReason,omitempty"`
	FlagID         string  `json:"flagId,omitempty"`
	Upvotes        int     `json:"upvotes"`
}

// Answered reports whether the question counts as answered for completion
// purposes. A flagged question counts regardless of SelectedAnswer.
func (s QuestionState) Answered() bool {
	return s.SelectedAnswer != nil || s.Flagged
}

// Counted reports whether the question counts toward the score.
func (s QuestionState) Counted() bool {
	return s.Flagged || (s.IsCorrect != nil && *s.IsCorrect)
}

// Flag is a community report marking a question as defective. Flags are keyed
// by a stable hash of (quiz id, question text), so two distinct questions
// sharing identical text share a flag.
type Flag struct {
	ID           string `json:"id"`
	QuizID       string `json:"quizId"`
	QuestionText string `json:"question"`
	Reason       string `json:"reason"`
	CreatorID    string `json:"creatorId"`
	Upvotes      int    `json:"upvotes"`
}

// LeaderboardEntry is one row of the append-only score log. Entries are never
// mutated; the only delete path is the administrative bulk clear.
type LeaderboardEntry struct {
	ID         string    `json:"id"`
	QuizID     string    `json:"quizId"`
	Name       string    `json:"name"`
	Score      int       `json:"score"`
	DurationMS int64     `json:"duration"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Quiz is a named pool of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}

// GlobalQuizID is the sentinel quiz id meaning "rank across all quizzes".
const GlobalQuizID = "global"

// MaxNameLength bounds leaderboard names after trimming.
const MaxNameLength = 64
