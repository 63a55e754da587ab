package models

import (
	"database/sql"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type APIUser struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type APIUserModel struct {
	DB *sql.DB
}

func NewAPIUserModel(db *sql.DB) *APIUserModel {
	return &APIUserModel{DB: db}
}

func (m *APIUserModel) Create(email, password string) (*APIUser, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &APIUser{}
	err = m.DB.QueryRow(`
		INSERT INTO api_users (email, password_hash) VALUES ($1, $2)
		RETURNING id, email, password_hash, created_at`,
		email, string(hash)).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (m *APIUserModel) GetByEmail(email string) (*APIUser, error) {
	user := &APIUser{}
	err := m.DB.QueryRow(`
		SELECT id, email, password_hash, created_at FROM api_users WHERE email = $1`,
		email).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CheckPassword compares a candidate password against the stored hash.
func (u *APIUser) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}
