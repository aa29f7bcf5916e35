package telegram

import (
	"fmt"
	"log/slog"
	"strings"
)

// slogBotLogger routes telegram-bot-api's logging through slog. The library
// prints request dumps in debug mode and a few retry notices; only the
// latter deserve more than debug.
type slogBotLogger struct {
	log *slog.Logger
}

func (s *slogBotLogger) Println(v ...any) {
	s.write(fmt.Sprint(v...))
}

func (s *slogBotLogger) Printf(format string, v ...any) {
	s.write(fmt.Sprintf(format, v...))
}

func (s *slogBotLogger) write(msg string) {
	msg = strings.TrimSpace(msg)
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "fail") || strings.Contains(lower, "error") {
		s.log.Warn(msg)
		return
	}
	s.log.Debug(msg)
}
