//go:build integration

package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"scene-server/internal/database"
	"scene-server/internal/models"
	"scene-server/pkg/migration"
)

// IntegrationTestSuite гоняет репозитории против настоящего PostgreSQL
// в контейнере. Требует работающий Docker; в -short режиме пропускается.
type IntegrationTestSuite struct {
	suite.Suite
	ctx         context.Context
	pgContainer *postgres.PostgresContainer
	pool        *pgxpool.Pool
	logger      *zap.Logger

	userID uuid.UUID
	saveID uuid.UUID
}

func (s *IntegrationTestSuite) SetupSuite() {
	s.ctx = context.Background()
	var err error

	s.logger, err = zap.NewDevelopment()
	require.NoError(s.T(), err)

	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("scene_test"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to start postgres container")

	connStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err)

	s.pool, err = pgxpool.New(s.ctx, connStr)
	require.NoError(s.T(), err)

	migrator := migration.NewMigrator(migration.Config{
		MigrationsPath: database.MigrationsPath,
		MigrationsFS:   database.MigrationsFS(),
	}, s.pool)
	require.NoError(s.T(), migrator.Up(s.ctx), "Failed to apply migrations")

	// Общие фикстуры: пользователь и сохранение, на которые ссылаются
	// остальные тесты набора.
	s.userID = uuid.New()
	users := database.NewPgUserRepository(s.pool, s.logger)
	require.NoError(s.T(), users.CreateUser(s.ctx, &models.User{
		ID:           s.userID,
		Username:     "integration",
		PasswordHash: "x",
	}))

	s.saveID = uuid.New()
	saves := database.NewPgSaveRepository(s.pool, s.logger)
	require.NoError(s.T(), saves.CreateSave(s.ctx, &models.Save{
		ID:        s.saveID,
		UserID:    s.userID,
		Title:     "Интеграционная игра",
		ScriptKey: "demo",
	}))
}

func (s *IntegrationTestSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.pgContainer != nil {
		if err := s.pgContainer.Terminate(s.ctx); err != nil {
			s.logger.Error("Failed to terminate postgres container", zap.Error(err))
		}
	}
}

func (s *IntegrationTestSuite) TestUserRepository() {
	users := database.NewPgUserRepository(s.pool, s.logger)

	got, err := users.GetUserByUsername(s.ctx, "integration")
	s.Require().NoError(err)
	s.Equal(s.userID, got.ID)

	byID, err := users.GetUserByID(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Equal("integration", byID.Username)

	_, err = users.GetUserByUsername(s.ctx, "nobody")
	s.ErrorIs(err, database.ErrUserNotFound)

	err = users.CreateUser(s.ctx, &models.User{ID: uuid.New(), Username: "integration", PasswordHash: "y"})
	s.ErrorIs(err, database.ErrUsernameTaken)
}

func (s *IntegrationTestSuite) TestSaveRepository() {
	saves := database.NewPgSaveRepository(s.pool, s.logger)

	got, err := saves.GetByID(s.ctx, s.saveID, s.userID)
	s.Require().NoError(err)
	s.Equal("Интеграционная игра", got.Title)

	// Чужой userID не видит сохранение.
	_, err = saves.GetByID(s.ctx, s.saveID, uuid.New())
	s.ErrorIs(err, database.ErrSaveNotFound)

	s.Require().NoError(saves.Touch(s.ctx, s.saveID))
	touched, err := saves.GetByID(s.ctx, s.saveID, s.userID)
	s.Require().NoError(err)
	s.False(touched.LastPlayedAt.Before(got.LastPlayedAt))

	list, err := saves.ListByUser(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Len(list, 1)

	other := &models.Save{ID: uuid.New(), UserID: s.userID, Title: "Временная"}
	s.Require().NoError(saves.CreateSave(s.ctx, other))
	s.Require().NoError(saves.Delete(s.ctx, other.ID, s.userID))
	_, err = saves.GetByID(s.ctx, other.ID, s.userID)
	s.ErrorIs(err, database.ErrSaveNotFound)
}

func (s *IntegrationTestSuite) TestRoleRepository() {
	roles := database.NewPgRoleRepository(s.pool, s.logger)

	created, err := roles.GetOrCreateRole(s.ctx, "demo", "qinling", "钦灵")
	s.Require().NoError(err)
	s.NotZero(created.ID)

	// Повторный вызов возвращает ту же роль, не создаёт дубликат.
	again, err := roles.GetOrCreateRole(s.ctx, "demo", "qinling", "钦灵")
	s.Require().NoError(err)
	s.Equal(created.ID, again.ID)

	list, err := roles.ListByScript(s.ctx, "demo")
	s.Require().NoError(err)
	s.Len(list, 1)
}

func (s *IntegrationTestSuite) TestLineRepository() {
	lines := database.NewPgLineRepository(s.pool, s.logger)

	batch := []models.PerceivedLine{
		{
			Line: models.Line{
				ID:        1,
				SaveID:    s.saveID,
				Content:   "Кто идёт?",
				Attribute: models.AttributeUser,
				CreatedAt: time.Now().UTC(),
			},
			PerceivedRoleIDs: []int64{1},
		},
		{
			Line: models.Line{
				ID:              2,
				SaveID:          s.saveID,
				Content:         "Это я.",
				Attribute:       models.AttributeAssistant,
				SenderRoleID:    1,
				DisplayName:     "钦灵",
				OriginalEmotion: "高兴",
				CreatedAt:       time.Now().UTC(),
			},
			PerceivedRoleIDs: []int64{1},
		},
	}
	s.Require().NoError(lines.InsertLines(s.ctx, s.saveID, batch))

	restored, err := lines.ListBySave(s.ctx, s.saveID)
	s.Require().NoError(err)
	s.Require().Len(restored, 2)
	s.Equal("Кто идёт?", restored[0].Content)
	s.Equal([]int64{1}, restored[1].PerceivedRoleIDs)

	s.Require().NoError(lines.UpdateDerived(s.ctx, s.saveID, 2, "调皮", "reply.wav"))
	restored, err = lines.ListBySave(s.ctx, s.saveID)
	s.Require().NoError(err)
	s.Equal("调皮", restored[1].PredictedEmotion)
	s.Equal("reply.wav", restored[1].AudioFile)

	// Повторная вставка той же реплики идемпотентна.
	s.Require().NoError(lines.InsertLines(s.ctx, s.saveID, batch[:1]))
	restored, err = lines.ListBySave(s.ctx, s.saveID)
	s.Require().NoError(err)
	s.Len(restored, 2)
}

func TestIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропуск интеграционных тестов в -short режиме")
	}
	suite.Run(t, new(IntegrationTestSuite))
}
