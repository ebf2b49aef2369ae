package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"scene-server/internal/models"
)

// ErrUserNotFound возвращается при отсутствии пользователя.
var ErrUserNotFound = errors.New("пользователь не найден")

// ErrUsernameTaken возвращается при попытке занять существующее имя.
var ErrUsernameTaken = errors.New("имя пользователя уже занято")

const (
	userFields = `id, username, password_hash, created_at`

	insertUserQuery = `
		INSERT INTO users (id, username, password_hash)
		VALUES ($1, $2, $3)
	`
	getUserByUsernameQuery = `
		SELECT ` + userFields + ` FROM users WHERE username = $1
	`
	getUserByIDQuery = `
		SELECT ` + userFields + ` FROM users WHERE id = $1
	`
)

// pgUserRepository - PostgreSQL-хранилище учётных записей.
type pgUserRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgUserRepository создаёт хранилище учётных записей.
func NewPgUserRepository(db DBTX, logger *zap.Logger) *pgUserRepository {
	return &pgUserRepository{
		db:     db,
		logger: logger.Named("PgUserRepo"),
	}
}

// CreateUser сохраняет нового пользователя.
func (r *pgUserRepository) CreateUser(ctx context.Context, user *models.User) error {
	_, err := r.db.Exec(ctx, insertUserQuery, user.ID, user.Username, user.PasswordHash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return ErrUsernameTaken
		}
		return fmt.Errorf("создание пользователя %s: %w", user.Username, err)
	}
	r.logger.Info("Пользователь создан", zap.String("username", user.Username))
	return nil
}

// GetUserByUsername возвращает пользователя по имени.
func (r *pgUserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := pgxscan.Get(ctx, r.db, &user, getUserByUsernameQuery, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("поиск пользователя %s: %w", username, err)
	}
	return &user, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *pgUserRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := pgxscan.Get(ctx, r.db, &user, getUserByIDQuery, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("поиск пользователя %s: %w", id, err)
	}
	return &user, nil
}
