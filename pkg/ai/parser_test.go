package ai_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scene-server/pkg/ai"
)

func TestParseReplySegments(t *testing.T) {
	segments := ai.ParseReply("【高兴】你好<こんにちは>（挥手）【好奇】你是谁？")
	require.Len(t, segments, 2)

	assert.Equal(t, ai.Segment{Emotion: "高兴", Text: "你好", TTS: "こんにちは", Action: "挥手"}, segments[0])
	assert.Equal(t, ai.Segment{Emotion: "好奇", Text: "你是谁？"}, segments[1])
}

func TestParseReplyWithoutTags(t *testing.T) {
	segments := ai.ParseReply("  Просто текст без разметки.  ")
	require.Len(t, segments, 1)
	assert.Equal(t, ai.Segment{Text: "Просто текст без разметки."}, segments[0])

	assert.Nil(t, ai.ParseReply("   "))
}

func TestParseReplyNormalizesASCIIParens(t *testing.T) {
	segments := ai.ParseReply("【平静】понятно(кивает)")
	require.Len(t, segments, 1)
	assert.Equal(t, "кивает", segments[0].Action)
	assert.Equal(t, "понятно", segments[0].Text)
}

func TestParseReplyDropsDanglingTag(t *testing.T) {
	// Висящий тег без текста и озвучки отбрасывается, действие его не спасает.
	segments := ai.ParseReply("【高兴】（прыгает）【平静】ладно")
	require.Len(t, segments, 1)
	assert.Equal(t, "平静", segments[0].Emotion)
}

func TestParseReplyStripsActionInsideTTS(t *testing.T) {
	segments := ai.ParseReply("【高兴】привет<やあ（笑）>")
	require.Len(t, segments, 1)
	assert.Equal(t, "やあ", segments[0].TTS)
}
