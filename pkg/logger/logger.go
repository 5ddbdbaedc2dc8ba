package logger

import (
	"os"
	"strings"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// Logger bundles the application logger and the quieter one handed to whatsmeow internals.
type Logger struct {
	App    waLog.Logger
	Client waLog.Logger
}

// New builds stdout loggers at the given level. Setting NO_COLOR turns off ANSI colors.
func New(level string) *Logger {
	level = strings.ToUpper(strings.TrimSpace(level))
	if level == "" {
		level = "INFO"
	}
	color := os.Getenv("NO_COLOR") == ""
	clientLevel := "WARN"
	if level == "DEBUG" {
		clientLevel = "INFO"
	}
	return &Logger{
		App:    waLog.Stdout("Keeper", level, color),
		Client: waLog.Stdout("WA", clientLevel, color),
	}
}
