package models

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Session struct {
	ID     int64
	UserID int64
	// Token is only set when creating a new session. When looking up a
	// session this will be left empty, as we only store the hash of a
	// session token in our database and we cannot reverse it.
	Token     string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
}

const (
	// MinBytesPerToken is the minimum number of bytes for a session token
	MinBytesPerToken = 32
	// DefaultTokenLength is the default token length (32 bytes = 256 bits)
	DefaultTokenLength = 32
	// DefaultSessionDuration is how long a session lasts
	DefaultSessionDuration = 24 * time.Hour
)

type SessionService struct {
	pool *pgxpool.Pool

	BytesPerToken   int
	SessionDuration time.Duration
}

func NewSessionService(pool *pgxpool.Pool, duration time.Duration) *SessionService {
	if duration <= 0 {
		duration = DefaultSessionDuration
	}
	return &SessionService{
		pool:            pool,
		BytesPerToken:   DefaultTokenLength,
		SessionDuration: duration,
	}
}

// Create issues a new session for the user, replacing any existing one.
func (ss *SessionService) Create(ctx context.Context, userID int64) (*Session, error) {
	bytesPerToken := ss.BytesPerToken
	if bytesPerToken < MinBytesPerToken {
		bytesPerToken = MinBytesPerToken
	}
	token, err := ss.generateToken(bytesPerToken)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	session := &Session{
		UserID:    userID,
		Token:     token,
		TokenHash: ss.hash(token),
	}

	query := `
		INSERT INTO sessions (user_id, token_hash, created_at, expires_at)
		VALUES ($1, $2, NOW(), NOW() + $3)
		ON CONFLICT (user_id)
		DO UPDATE SET token_hash = $2, created_at = NOW(), expires_at = NOW() + $3
		RETURNING id, created_at, expires_at
	`

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	err = ss.pool.QueryRow(ctx, query, session.UserID, session.TokenHash, ss.SessionDuration).
		Scan(&session.ID, &session.CreatedAt, &session.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// User validates a raw session token and returns its user.
func (ss *SessionService) User(ctx context.Context, token string) (*User, error) {
	tokenHash := ss.hash(token)

	query := `
		SELECT users.id, users.email, users.username, users.role
		FROM sessions
		JOIN users ON users.id = sessions.user_id
		WHERE sessions.token_hash = $1 AND sessions.expires_at > NOW()
	`

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	user := &User{}
	err := ss.pool.QueryRow(ctx, query, tokenHash).
		Scan(&user.ID, &user.Email, &user.Username, &user.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}

	return user, nil
}

func (ss *SessionService) Delete(ctx context.Context, token string) error {
	tokenHash := ss.hash(token)

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := ss.pool.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (ss *SessionService) generateToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// hash returns the stored form of a session token.
func (ss *SessionService) hash(token string) string {
	hash := sha256.Sum256([]byte(token))
	return base64.URLEncoding.EncodeToString(hash[:])
}
