package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// HTTPSynthesizer озвучивает реплики через VITS-совместимый HTTP-сервис
// и складывает полученные WAV-файлы в outputDir. Возвращаемое имя файла
// относительное: раздачей аудио занимается внешний сервер.
type HTTPSynthesizer struct {
	baseURL   string
	speakerID string
	outputDir string
	client    *http.Client
}

// NewHTTPSynthesizer создаёт синтезатор озвучки.
func NewHTTPSynthesizer(baseURL, speakerID, outputDir string) (*HTTPSynthesizer, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("tts: не удалось создать каталог аудио '%s': %w", outputDir, err)
	}
	return &HTTPSynthesizer{
		baseURL:   baseURL,
		speakerID: speakerID,
		outputDir: outputDir,
		client:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Synthesize запрашивает озвучку реплики и возвращает имя WAV-файла.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, character, content string) (string, error) {
	query := url.Values{}
	query.Set("text", content)
	query.Set("speaker_id", s.speakerID)
	query.Set("format", "wav")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("tts: формирование запроса: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("tts: запрос к сервису озвучки: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tts: сервис озвучки вернул статус %d", resp.StatusCode)
	}

	fileName := uuid.NewString() + ".wav"
	out, err := os.Create(filepath.Join(s.outputDir, fileName))
	if err != nil {
		return "", fmt.Errorf("tts: создание аудиофайла: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("tts: запись аудиофайла: %w", err)
	}
	return fileName, nil
}
