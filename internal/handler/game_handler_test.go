package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scene-server/internal/auth"
	"scene-server/internal/database"
	"scene-server/internal/game"
	"scene-server/internal/models"
	"scene-server/internal/service"
)

type MockAuthAPI struct {
	mock.Mock
}

func (m *MockAuthAPI) Register(ctx context.Context, username, password string) (*models.User, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockAuthAPI) Login(ctx context.Context, username, password string) (*models.TokenDetails, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TokenDetails), args.Error(1)
}

func (m *MockAuthAPI) Logout(ctx context.Context, accessUUID, refreshToken string) error {
	args := m.Called(ctx, accessUUID, refreshToken)
	return args.Error(0)
}

func (m *MockAuthAPI) Refresh(ctx context.Context, refreshToken string) (*models.TokenDetails, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TokenDetails), args.Error(1)
}

func (m *MockAuthAPI) VerifyAccessToken(ctx context.Context, tokenString string) (*models.Claims, error) {
	args := m.Called(ctx, tokenString)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Claims), args.Error(1)
}

type MockGameAPI struct {
	mock.Mock
}

func (m *MockGameAPI) OpenSession(ctx context.Context, clientID string, userID, saveID uuid.UUID) (*service.Session, error) {
	args := m.Called(ctx, clientID, userID, saveID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Session), args.Error(1)
}

func (m *MockGameAPI) CloseSession(ctx context.Context, clientID string) {
	m.Called(ctx, clientID)
}

func (m *MockGameAPI) ScriptList() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

func (m *MockGameAPI) StartScript(ctx context.Context, clientID, scriptName string) error {
	args := m.Called(ctx, clientID, scriptName)
	return args.Error(0)
}

func (m *MockGameAPI) HandlePlayerMessage(ctx context.Context, clientID, content string) error {
	args := m.Called(ctx, clientID, content)
	return args.Error(0)
}

func (m *MockGameAPI) History(clientID string, n int) ([]models.PerceivedLine, error) {
	args := m.Called(clientID, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PerceivedLine), args.Error(1)
}

func (m *MockGameAPI) Scene(clientID string) (service.SceneState, error) {
	args := m.Called(clientID)
	return args.Get(0).(service.SceneState), args.Error(1)
}

func (m *MockGameAPI) SetPlayer(clientID string, player models.Player) error {
	args := m.Called(clientID, player)
	return args.Error(0)
}

type MockSaveStore struct {
	mock.Mock
}

func (m *MockSaveStore) CreateSave(ctx context.Context, save *models.Save) error {
	args := m.Called(ctx, save)
	return args.Error(0)
}

func (m *MockSaveStore) GetByID(ctx context.Context, saveID, userID uuid.UUID) (*models.Save, error) {
	args := m.Called(ctx, saveID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Save), args.Error(1)
}

func (m *MockSaveStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Save, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Save), args.Error(1)
}

func (m *MockSaveStore) Touch(ctx context.Context, saveID uuid.UUID) error {
	args := m.Called(ctx, saveID)
	return args.Error(0)
}

func (m *MockSaveStore) Delete(ctx context.Context, saveID, userID uuid.UUID) error {
	args := m.Called(ctx, saveID, userID)
	return args.Error(0)
}

type handlerFixture struct {
	router  *gin.Engine
	authAPI *MockAuthAPI
	gameAPI *MockGameAPI
	saves   *MockSaveStore
	userID  uuid.UUID
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &handlerFixture{
		authAPI: new(MockAuthAPI),
		gameAPI: new(MockGameAPI),
		saves:   new(MockSaveStore),
		userID:  uuid.New(),
	}

	// Валидация токена в middleware проходит для токена "valid-token"
	claims := &models.Claims{
		UserID:    f.userID,
		TokenUUID: uuid.NewString(),
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	f.authAPI.On("VerifyAccessToken", mock.Anything, "valid-token").Return(claims, nil).Maybe()

	router := gin.New()
	NewGameHandler(f.gameAPI, f.saves, f.authAPI, zap.NewNop()).RegisterRoutes(router)
	NewAuthHandler(f.authAPI).RegisterRoutes(router)
	f.router = router
	return f
}

func (f *handlerFixture) do(t *testing.T, method, path string, body any, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authorized {
		req.Header.Set("Authorization", "Bearer valid-token")
	}
	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, req)
	return recorder
}

func TestRegisterEndpoint(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newHandlerFixture(t)
		user := &models.User{ID: uuid.New(), Username: "alice"}
		f.authAPI.On("Register", mock.Anything, "alice", "password1").Return(user, nil).Once()

		rec := f.do(t, http.MethodPost, "/auth/register", gin.H{"username": "alice", "password": "password1"}, false)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), "alice")
	})

	t.Run("ShortPassword", func(t *testing.T) {
		f := newHandlerFixture(t)
		rec := f.do(t, http.MethodPost, "/auth/register", gin.H{"username": "alice", "password": "short"}, false)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		f.authAPI.AssertNotCalled(t, "Register")
	})

	t.Run("BadUsername", func(t *testing.T) {
		f := newHandlerFixture(t)
		rec := f.do(t, http.MethodPost, "/auth/register", gin.H{"username": "al ice!", "password": "password1"}, false)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Duplicate", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.authAPI.On("Register", mock.Anything, "alice", "password1").Return(nil, auth.ErrUserAlreadyExists).Once()

		rec := f.do(t, http.MethodPost, "/auth/register", gin.H{"username": "alice", "password": "password1"}, false)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestLoginEndpoint(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newHandlerFixture(t)
		td := &models.TokenDetails{AccessToken: "at", RefreshToken: "rt"}
		f.authAPI.On("Login", mock.Anything, "alice", "password1").Return(td, nil).Once()

		rec := f.do(t, http.MethodPost, "/auth/login", gin.H{"username": "alice", "password": "password1"}, false)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "access_token")
	})

	t.Run("WrongCredentials", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.authAPI.On("Login", mock.Anything, "alice", "wrong").Return(nil, auth.ErrInvalidCredentials).Once()

		rec := f.do(t, http.MethodPost, "/auth/login", gin.H{"username": "alice", "password": "wrong"}, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAuthMiddleware(t *testing.T) {
	f := newHandlerFixture(t)

	t.Run("MissingHeader", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/scripts", nil, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("InvalidToken", func(t *testing.T) {
		f.authAPI.On("VerifyAccessToken", mock.Anything, "bad-token").Return(nil, auth.ErrTokenInvalid).Once()

		req := httptest.NewRequest(http.MethodGet, "/api/scripts", nil)
		req.Header.Set("Authorization", "Bearer bad-token")
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestSaveEndpoints(t *testing.T) {
	t.Run("List", func(t *testing.T) {
		f := newHandlerFixture(t)
		saves := []models.Save{{ID: uuid.New(), UserID: f.userID, Title: "Вечер у заставы"}}
		f.saves.On("ListByUser", mock.Anything, f.userID).Return(saves, nil).Once()

		rec := f.do(t, http.MethodGet, "/api/saves", nil, true)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Вечер у заставы")
	})

	t.Run("Create", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.saves.On("CreateSave", mock.Anything, mock.MatchedBy(func(s *models.Save) bool {
			return s.UserID == f.userID && s.Title == "Новая игра" && s.ID != uuid.Nil
		})).Return(nil).Once()

		rec := f.do(t, http.MethodPost, "/api/saves", gin.H{"title": "Новая игра", "script_key": "demo"}, true)
		assert.Equal(t, http.StatusCreated, rec.Code)
		f.saves.AssertExpectations(t)
	})

	t.Run("DeleteForeignSave", func(t *testing.T) {
		f := newHandlerFixture(t)
		saveID := uuid.New()
		f.saves.On("GetByID", mock.Anything, saveID, f.userID).Return(nil, database.ErrSaveNotFound).Once()

		rec := f.do(t, http.MethodDelete, "/api/saves/"+saveID.String(), nil, true)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSessionEndpoints(t *testing.T) {
	f := newHandlerFixture(t)
	saveID := uuid.New()
	save := &models.Save{ID: saveID, UserID: f.userID, Title: "Игра"}
	clientID := saveID.String()

	session := &service.Session{ID: clientID, UserID: f.userID, SaveID: saveID, Status: game.NewGameStatus(zap.NewNop())}

	f.saves.On("GetByID", mock.Anything, saveID, f.userID).Return(save, nil)
	f.gameAPI.On("OpenSession", mock.Anything, clientID, f.userID, saveID).Return(session, nil).Once()
	f.saves.On("Touch", mock.Anything, saveID).Return(nil).Once()

	rec := f.do(t, http.MethodPost, "/api/saves/"+clientID+"/session", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), clientID)

	t.Run("PlayerMessage", func(t *testing.T) {
		f.gameAPI.On("HandlePlayerMessage", mock.Anything, clientID, "Привет!").Return(nil).Once()

		rec := f.do(t, http.MethodPost, "/api/saves/"+clientID+"/message", gin.H{"content": "Привет!"}, true)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("MessageWithoutCharacter", func(t *testing.T) {
		f.gameAPI.On("HandlePlayerMessage", mock.Anything, clientID, "Эй?").Return(service.ErrNoActiveCharacter).Once()

		rec := f.do(t, http.MethodPost, "/api/saves/"+clientID+"/message", gin.H{"content": "Эй?"}, true)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("History", func(t *testing.T) {
		lines := []models.PerceivedLine{{Line: models.Line{ID: 1, Content: "Привет!", Attribute: models.AttributeUser}}}
		f.gameAPI.On("History", clientID, 5).Return(lines, nil).Once()

		rec := f.do(t, http.MethodGet, "/api/saves/"+clientID+"/history?limit=5", nil, true)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Привет!")
	})

	t.Run("HistoryBadLimit", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/saves/"+clientID+"/history?limit=abc", nil, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Scene", func(t *testing.T) {
		state := service.SceneState{Background: "gate_night", CurrentCharacter: "Страж"}
		f.gameAPI.On("Scene", clientID).Return(state, nil).Once()

		rec := f.do(t, http.MethodGet, "/api/saves/"+clientID+"/scene", nil, true)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "gate_night")
	})

	t.Run("Close", func(t *testing.T) {
		f.gameAPI.On("CloseSession", mock.Anything, clientID).Return().Once()

		rec := f.do(t, http.MethodDelete, "/api/saves/"+clientID+"/session", nil, true)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestScriptEndpoints(t *testing.T) {
	f := newHandlerFixture(t)

	t.Run("List", func(t *testing.T) {
		f.gameAPI.On("ScriptList").Return([]string{"Застава"}).Once()

		rec := f.do(t, http.MethodGet, "/api/scripts", nil, true)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Застава")
	})

	t.Run("StartAccepted", func(t *testing.T) {
		saveID := uuid.New()
		save := &models.Save{ID: saveID, UserID: f.userID}
		started := make(chan struct{})

		f.saves.On("GetByID", mock.Anything, saveID, f.userID).Return(save, nil).Once()
		f.gameAPI.On("StartScript", mock.Anything, saveID.String(), "Застава").
			Run(func(mock.Arguments) { close(started) }).Return(nil).Once()

		rec := f.do(t, http.MethodPost, "/api/saves/"+saveID.String()+"/script", gin.H{"script_name": "Застава"}, true)
		assert.Equal(t, http.StatusAccepted, rec.Code)

		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("прогон сценария не запустился")
		}
	})
}
