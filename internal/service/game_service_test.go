package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scene-server/internal/models"
	"scene-server/internal/service"
	"scene-server/pkg/ai"
)

func newGameService(f *dialogueFixture) *service.GameService {
	return service.NewGameService(
		f.sessions, nil, nil, f.svc, f.broker, nil, f.lines, zap.NewNop(),
	)
}

func TestHandlePlayerMessage(t *testing.T) {
	f := newDialogueFixture(t)
	svc := newGameService(f)
	f.session.Status.CurrentCharacter = f.role

	f.provider.On("GenerateChatStream", mock.Anything, clientID, mock.Anything, ai.GenerationParams{}).
		Return("【平静】Слышу.", ai.UsageInfo{}, nil).Once()
	f.lines.On("InsertLines", mock.Anything, f.session.SaveID, mock.Anything).Return(nil).Twice()
	f.tasks.On("PublishEnrichmentTask", mock.Anything, mock.Anything).Return(nil).Once()

	err := svc.HandlePlayerMessage(context.Background(), clientID, "Кто там?")
	require.NoError(t, err)

	lines := f.session.Status.Journal.Lines()
	require.Len(t, lines, 4)
	assert.Equal(t, "Кто там?", lines[2].Content)
	assert.Equal(t, models.AttributeUser, lines[2].Attribute)
	assert.Equal(t, "Слышу.", lines[3].Content)
	f.provider.AssertExpectations(t)
}

func TestHandlePlayerMessageWithoutCharacter(t *testing.T) {
	f := newDialogueFixture(t)
	svc := newGameService(f)
	f.lines.On("InsertLines", mock.Anything, f.session.SaveID, mock.Anything).Return(nil).Once()

	err := svc.HandlePlayerMessage(context.Background(), clientID, "Эй?")
	assert.ErrorIs(t, err, service.ErrNoActiveCharacter)

	// Реплика игрока всё равно в журнале: журнал - единица долговечности.
	assert.Equal(t, 3, f.session.Status.Journal.Len())
}

func TestHandlePlayerMessageEmpty(t *testing.T) {
	f := newDialogueFixture(t)
	svc := newGameService(f)

	err := svc.HandlePlayerMessage(context.Background(), clientID, "")
	assert.ErrorIs(t, err, service.ErrEmptyMessage)
	assert.Equal(t, 2, f.session.Status.Journal.Len())
}

// Сообщения игрока, чтения сцены и производные поля воркера приходят из
// разных горутин и сериализуются мьютексом сессии: журнал растёт без
// потерь, id строго возрастают.
func TestSceneOperationsSerialized(t *testing.T) {
	f := newDialogueFixture(t)
	svc := newGameService(f)
	f.session.Status.CurrentCharacter = f.role

	f.provider.On("GenerateChatStream", mock.Anything, clientID, mock.Anything, ai.GenerationParams{}).
		Return("【平静】Слышу.", ai.UsageInfo{}, nil)
	f.lines.On("InsertLines", mock.Anything, f.session.SaveID, mock.Anything).Return(nil)
	f.tasks.On("PublishEnrichmentTask", mock.Anything, mock.Anything).Return(nil)

	const messages = 25
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < messages; i++ {
			assert.NoError(t, svc.HandlePlayerMessage(context.Background(), clientID, "Кто там?"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < messages; i++ {
			_, err := svc.History(clientID, 0)
			assert.NoError(t, err)
			_, err = svc.Scene(clientID)
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < messages; i++ {
			f.session.ApplyDerived(int64(i+1), "平静", "")
		}
	}()
	wg.Wait()

	// Две реплики затравки плюс пара "вопрос-ответ" на каждое сообщение.
	lines := f.session.Status.Journal.Lines()
	require.Len(t, lines, 2+2*messages)
	for i := 1; i < len(lines); i++ {
		assert.Less(t, lines[i-1].ID, lines[i].ID)
	}
}

func TestHistoryAndScene(t *testing.T) {
	f := newDialogueFixture(t)
	svc := newGameService(f)
	f.session.Status.Background = "ворота"
	f.session.Status.CurrentCharacter = f.role

	all, err := svc.History(clientID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	last, err := svc.History(clientID, 1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "Привет!", last[0].Content)

	scene, err := svc.Scene(clientID)
	require.NoError(t, err)
	assert.Equal(t, "ворота", scene.Background)
	assert.Equal(t, "Герой", scene.CurrentCharacter)
	assert.Equal(t, []int64{7}, scene.PresentRoleIDs)

	_, err = svc.History("призрак", 0)
	assert.ErrorIs(t, err, service.ErrSessionNotFound)
}
