package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"scene-server/internal/database"
	"scene-server/internal/models"
)

// UserRepository - хранилище учётных записей.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// TokenRepository - хранилище выпущенных токенов (Redis).
type TokenRepository interface {
	SetToken(ctx context.Context, userID uuid.UUID, td *models.TokenDetails) error
	FetchAccess(ctx context.Context, accessUUID string) (uuid.UUID, error)
	FetchRefresh(ctx context.Context, refreshUUID string) (uuid.UUID, error)
	DeleteAccess(ctx context.Context, accessUUID string) error
	DeleteRefresh(ctx context.Context, refreshUUID string) error
}

// Config - настройки выпуска токенов.
type Config struct {
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// Service реализует регистрацию, вход и жизненный цикл JWT-токенов.
type Service struct {
	userRepo  UserRepository
	tokenRepo TokenRepository
	cfg       Config
	logger    *zap.Logger
}

// NewService создаёт Service.
func NewService(userRepo UserRepository, tokenRepo TokenRepository, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		cfg:       cfg,
		logger:    logger.Named("AuthService"),
	}
}

// Register создаёт нового пользователя.
func (s *Service) Register(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	s.logger.Info("Registering new user", zap.String("username", username))

	if username == "" || password == "" {
		s.logger.Warn("Registration attempt with empty username or password")
		return nil, ErrInvalidCredentials
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("Failed to hash password during registration", zap.Error(err))
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hashedPassword),
	}

	if err := s.userRepo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrUsernameTaken) {
			s.logger.Warn("Registration attempt for existing username", zap.String("username", username))
			return nil, ErrUserAlreadyExists
		}
		s.logger.Error("Failed to create user via repository", zap.Error(err))
		return nil, err
	}

	s.logger.Info("User registered successfully", zap.String("userID", user.ID.String()), zap.String("username", user.Username))
	return user, nil
}

// Login аутентифицирует пользователя и возвращает пару токенов.
func (s *Service) Login(ctx context.Context, username, password string) (*models.TokenDetails, error) {
	s.logger.Info("Login attempt", zap.String("username", username))
	user, err := s.userRepo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			s.logger.Warn("Login failed: user not found", zap.String("username", username))
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("Login failed: error getting user from repository", zap.Error(err), zap.String("username", username))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.logger.Warn("Login failed: invalid password", zap.String("username", username))
		return nil, ErrInvalidCredentials
	}

	td, err := s.createTokens(user.ID)
	if err != nil {
		s.logger.Error("Failed to create tokens during login", zap.Error(err), zap.String("userID", user.ID.String()))
		return nil, fmt.Errorf("failed to create tokens: %w", err)
	}

	if err := s.tokenRepo.SetToken(ctx, user.ID, td); err != nil {
		s.logger.Error("Failed to save token details during login", zap.Error(err), zap.String("userID", user.ID.String()))
		return nil, fmt.Errorf("failed to save token details: %w", err)
	}

	s.logger.Info("User logged in successfully", zap.String("userID", user.ID.String()))
	return td, nil
}

// Logout отзывает оба токена. Отсутствие токена в хранилище не считается ошибкой.
func (s *Service) Logout(ctx context.Context, accessUUID, refreshTokenString string) error {
	log := s.logger.With(zap.String("accessUUID", accessUUID))
	log.Debug("Attempting to logout user by deleting tokens")

	if err := s.tokenRepo.DeleteAccess(ctx, accessUUID); err != nil && !errors.Is(err, database.ErrTokenNotFound) {
		log.Error("Failed to delete access token during logout", zap.Error(err))
	}
	// Refresh-токен может быть уже просрочен, выход всё равно считается успешным
	if claims, err := s.parseToken(refreshTokenString); err == nil && claims.TokenType == "refresh" {
		if err := s.tokenRepo.DeleteRefresh(ctx, claims.TokenUUID); err != nil && !errors.Is(err, database.ErrTokenNotFound) {
			log.Error("Failed to delete refresh token during logout", zap.Error(err))
		}
	}
	return nil
}

// Refresh выпускает новую пару токенов по валидному refresh-токену.
func (s *Service) Refresh(ctx context.Context, refreshTokenString string) (*models.TokenDetails, error) {
	s.logger.Info("Token refresh attempt")
	claims, err := s.parseToken(refreshTokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != "refresh" {
		s.logger.Warn("Refresh attempt with non-refresh token", zap.String("tokenType", claims.TokenType))
		return nil, ErrTokenInvalid
	}

	refreshUUID := claims.TokenUUID
	userID, err := s.tokenRepo.FetchRefresh(ctx, refreshUUID)
	if err != nil {
		if errors.Is(err, database.ErrTokenNotFound) {
			s.logger.Warn("Refresh attempt with revoked token", zap.String("refreshUUID", refreshUUID))
			return nil, ErrTokenInvalid
		}
		s.logger.Error("Error checking refresh token existence", zap.Error(err), zap.String("refreshUUID", refreshUUID))
		return nil, fmt.Errorf("error checking refresh token existence: %w", err)
	}
	if userID != claims.UserID {
		s.logger.Error("Refresh token user ID mismatch",
			zap.String("tokenUserID", claims.UserID.String()),
			zap.String("repoUserID", userID.String()))
		return nil, ErrTokenInvalid
	}

	newTd, err := s.createTokens(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to create new tokens during refresh: %w", err)
	}

	// Старый refresh отзываем до сохранения новой пары
	if err := s.tokenRepo.DeleteRefresh(ctx, refreshUUID); err != nil && !errors.Is(err, database.ErrTokenNotFound) {
		s.logger.Error("Non-critical: failed to delete old refresh token", zap.Error(err), zap.String("refreshUUID", refreshUUID))
	}

	if err := s.tokenRepo.SetToken(ctx, claims.UserID, newTd); err != nil {
		s.logger.Error("Failed to save new token details during refresh", zap.Error(err))
		return nil, fmt.Errorf("failed to save new token details: %w", err)
	}

	s.logger.Info("Token refreshed successfully", zap.String("userID", claims.UserID.String()))
	return newTd, nil
}

// VerifyAccessToken проверяет подпись, срок действия и наличие токена в хранилище.
func (s *Service) VerifyAccessToken(ctx context.Context, tokenString string) (*models.Claims, error) {
	claims, err := s.parseToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != "access" {
		s.logger.Warn("Access check with non-access token", zap.String("tokenType", claims.TokenType))
		return nil, ErrTokenInvalid
	}

	if _, err := s.tokenRepo.FetchAccess(ctx, claims.TokenUUID); err != nil {
		if errors.Is(err, database.ErrTokenNotFound) {
			s.logger.Debug("Access token not found in store (revoked)", zap.String("accessUUID", claims.TokenUUID))
			return nil, ErrTokenInvalid
		}
		s.logger.Error("Error checking access token existence", zap.Error(err), zap.String("accessUUID", claims.TokenUUID))
		return nil, fmt.Errorf("error checking access token existence: %w", err)
	}
	return claims, nil
}

func (s *Service) parseToken(tokenString string) (*models.Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			s.logger.Debug("Token verification failed: expired")
			return nil, ErrTokenExpired
		}
		if errors.Is(err, jwt.ErrTokenMalformed) {
			s.logger.Warn("Token verification failed: malformed")
			return nil, ErrTokenMalformed
		}
		s.logger.Error("Failed to parse token", zap.Error(err))
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*models.Claims)
	if !ok || !token.Valid {
		s.logger.Warn("Token verification failed (invalid claims type or signature)")
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (s *Service) createTokens(userID uuid.UUID) (*models.TokenDetails, error) {
	now := time.Now()
	td := &models.TokenDetails{
		AccessUUID:  uuid.New().String(),
		RefreshUUID: uuid.New().String(),
		AtExpires:   now.Add(s.cfg.AccessTokenTTL).Unix(),
		RtExpires:   now.Add(s.cfg.RefreshTokenTTL).Unix(),
	}

	var err error
	td.AccessToken, err = s.signToken(userID, td.AccessUUID, "access", time.Unix(td.AtExpires, 0), now)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	td.RefreshToken, err = s.signToken(userID, td.RefreshUUID, "refresh", time.Unix(td.RtExpires, 0), now)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return td, nil
}

func (s *Service) signToken(userID uuid.UUID, tokenUUID, tokenType string, expiresAt, issuedAt time.Time) (string, error) {
	claims := &models.Claims{
		UserID:    userID,
		TokenUUID: tokenUUID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenUUID,
			Subject:   userID.String(),
			Issuer:    "scene-server",
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}
