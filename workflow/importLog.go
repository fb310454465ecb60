package workflow

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type importOutcome string

const (
	outcomeSuccess importOutcome = "success"
	outcomeWarning importOutcome = "warning"
	outcomeError   importOutcome = "error"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
)

// importRunLog appends one line per row outcome to a log file and mirrors it
// to the console with ANSI colors. The file is the durable audit artifact of
// an import run; it is opened append-only and never truncated.
type importRunLog struct {
	file *os.File
}

func newImportRunLog(path string) (*importRunLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open import log %s: %w", path, err)
	}
	l := &importRunLog{file: f}
	l.writeLine(fmt.Sprintf("[%s] === Import session started ===", time.Now().UTC().Format(time.RFC3339)))
	return l, nil
}

func (l *importRunLog) Close() error {
	return l.file.Close()
}

// Row records one outcome. storeId is included only when > 0.
func (l *importRunLog) Row(outcome importOutcome, legacyId, message string, storeId int) {
	line := fmt.Sprintf("[%s] [%s] Legacy ID: %s | %s",
		time.Now().UTC().Format(time.RFC3339), outcome, legacyId, message)
	if storeId > 0 {
		line += fmt.Sprintf(" | Supabase ID: %d", storeId)
	}
	l.writeLine(line)
}

func (l *importRunLog) writeLine(line string) {
	fmt.Fprintln(l.file, line)

	color := ansiGreen
	switch {
	case strings.Contains(line, "["+string(outcomeError)+"]"):
		color = ansiRed
	case strings.Contains(line, "["+string(outcomeWarning)+"]"):
		color = ansiYellow
	}
	fmt.Println(color + line + ansiReset)
}
