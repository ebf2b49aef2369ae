package script

import "errors"

// Ошибки данных (битые определения) фатальны для прогона сценария;
// ошибки исполнения отдельных событий - нет (см. EventsHandler).
var (
	ErrScriptNotFound = errors.New("сценарий не найден")
	ErrScriptLoad     = errors.New("ошибка чтения сценария")
	ErrChapterLoad    = errors.New("ошибка загрузки главы")
	ErrScriptEngine   = errors.New("ошибка исполнения сценария")
)
