package diag

import (
	"fmt"
)

type Code uint16

const (
	// Неизвестная ошибка
	UnknownCode Code = 0

	// Фронтенд C
	FrontInfo           Code = 1000
	FrontEndUnavailable Code = 1001
	ParseFailure        Code = 1002
	IncludeNotFound     Code = 1003

	// Анализ объявлений
	AnalyzeInfo            Code = 2000
	SkippedDecl            Code = 2001
	ExistingTLS            Code = 2002
	InsertionPointNotFound Code = 2003

	// Воркеры
	PoolInfo      Code = 3000
	Progress      Code = 3001
	WorkerFailure Code = 3002

	// Агрегация и запись
	RewriteInfo      Code = 4000
	ConflictingEdits Code = 4001
	FileRewritten    Code = 4002
	FileIO           Code = 4003
	OverlappingEdits Code = 4004

	// Таблица символов
	SymInfo      Code = 5000
	SymCommon    Code = 5001
	SymReadError Code = 5002

	ObsInfo    Code = 6000
	ObsTimings Code = 6001
)

var (
	codeDescription = map[Code]string{
		UnknownCode:            "Unknown error",
		FrontInfo:              "Front end information",
		FrontEndUnavailable:    "C front end unavailable",
		ParseFailure:           "File failed to parse",
		IncludeNotFound:        "Include not resolved",
		AnalyzeInfo:            "Analysis information",
		SkippedDecl:            "Declaration skipped",
		ExistingTLS:            "Declaration is already thread-local",
		InsertionPointNotFound: "No insertion point for declaration",
		PoolInfo:               "Worker pool information",
		Progress:               "Progress",
		WorkerFailure:          "Worker process failed",
		RewriteInfo:            "Rewrite information",
		ConflictingEdits:       "Conflicting edits",
		FileRewritten:          "File rewritten",
		FileIO:                 "File I/O failure",
		OverlappingEdits:       "Overlapping edits",
		SymInfo:                "Symbol table information",
		SymCommon:              "Common symbol",
		SymReadError:           "Cannot read object file",
		ObsInfo:                "Observability information",
		ObsTimings:             "Pipeline timings",
	}
)

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("FE%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("ANL%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("POOL%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("RW%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("SYM%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("OBS%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[Code(0)]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
