package models

import (
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
)

// QuestionResponse is a remembered answer to a form question. Answers are
// keyed by the normalized question hash together with the widget type, so a
// free-text answer is never replayed into a dropdown.
type QuestionResponse struct {
	ID           int       `json:"id"`
	QuestionHash string    `json:"question_hash"`
	FieldType    string    `json:"field_type"`
	QuestionText string    `json:"question_text"`
	Answer       string    `json:"answer"`
	Source       string    `json:"source"`
	ReuseCount   int       `json:"reuse_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastUsedAt   time.Time `json:"last_used_at"`
}

type AnswerStoreModel struct {
	DB *sql.DB
}

func NewAnswerStoreModel(db *sql.DB) *AnswerStoreModel {
	return &AnswerStoreModel{DB: db}
}

var questionNoiseRe = regexp.MustCompile(`[^a-z0-9 ]+`)
var spacesRe = regexp.MustCompile(`\s+`)

// NormalizeQuestion lowercases, strips punctuation and collapses whitespace
// so cosmetic label differences hash identically.
func NormalizeQuestion(question string) string {
	q := strings.ToLower(strings.TrimSpace(question))
	q = questionNoiseRe.ReplaceAllString(q, " ")
	q = spacesRe.ReplaceAllString(q, " ")
	return strings.TrimSpace(q)
}

// QuestionHash returns the md5 hex of the normalized question text.
func QuestionHash(question string) string {
	sum := md5.Sum([]byte(NormalizeQuestion(question)))
	return hex.EncodeToString(sum[:])
}

// Lookup returns the remembered answer for (question, fieldType) and bumps
// its reuse counter. A miss returns (nil, nil).
func (m *AnswerStoreModel) Lookup(question, fieldType string) (*QuestionResponse, error) {
	hash := QuestionHash(question)
	resp := &QuestionResponse{}
	query := `
		SELECT id, question_hash, field_type, question_text, answer, source, reuse_count, created_at, last_used_at
		FROM question_responses
		WHERE question_hash = $1 AND field_type = $2`
	err := m.DB.QueryRow(query, hash, fieldType).Scan(
		&resp.ID, &resp.QuestionHash, &resp.FieldType, &resp.QuestionText,
		&resp.Answer, &resp.Source, &resp.ReuseCount, &resp.CreatedAt, &resp.LastUsedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	_, err = m.DB.Exec(
		`UPDATE question_responses SET reuse_count = reuse_count + 1, last_used_at = NOW() WHERE id = $1`,
		resp.ID)
	if err != nil {
		return nil, err
	}
	resp.ReuseCount++
	return resp, nil
}

// Save remembers an answer, replacing any previous answer for the same
// (question, fieldType) pair.
func (m *AnswerStoreModel) Save(question, fieldType, answer, source string) error {
	query := `
		INSERT INTO question_responses (question_hash, field_type, question_text, answer, source)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (question_hash, field_type) DO UPDATE SET
			answer = EXCLUDED.answer,
			source = EXCLUDED.source,
			last_used_at = NOW()`
	_, err := m.DB.Exec(query, QuestionHash(question), fieldType, question, answer, source)
	return err
}
