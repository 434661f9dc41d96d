package logscan

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	dwerrors "github.com/diskwatch/diskwatch/internal/errors"
)

// Source provides raw log lines for a scan window. Lines are single-line
// UTF-8 text in chronological order.
type Source interface {
	FetchLogs(ctx context.Context, since time.Time) ([]string, error)
}

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

var defaultRunCommandOutput = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// JournalSource reads the kernel ring buffer via journalctl.
type JournalSource struct {
	run     commandRunner
	timeout time.Duration
}

// NewJournalSource creates a journalctl-backed source.
func NewJournalSource(timeout time.Duration) *JournalSource {
	return &JournalSource{
		run:     defaultRunCommandOutput,
		timeout: timeout,
	}
}

// FetchLogs returns kernel log lines since the given time.
func (s *JournalSource) FetchLogs(ctx context.Context, since time.Time) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	args := []string{"-k", "--no-pager", "-q"}
	if !since.IsZero() {
		args = append(args, "--since", since.Format("2006-01-02 15:04:05"))
	}

	output, err := s.run(ctx, "journalctl", args...)
	if err != nil {
		return nil, dwerrors.WrapToolError("fetch_journal", "", err)
	}

	return splitLines(output), nil
}

// FileSource reads a syslog-style log file. The scanner's timestamp filter
// handles the window; the whole file is read and split here.
type FileSource struct {
	path string
}

// NewFileSource creates a file-backed source.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// FetchLogs returns all lines of the configured file.
func (s *FileSource) FetchLogs(ctx context.Context, since time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, dwerrors.WrapToolError("read_log_file", "", err)
	}

	return splitLines(data), nil
}

func splitLines(data []byte) []string {
	raw := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// NewSource selects the configured source: a log file when a path is set,
// otherwise the kernel journal.
func NewSource(filePath string, timeout time.Duration) Source {
	if filePath != "" {
		return NewFileSource(filePath)
	}
	return NewJournalSource(timeout)
}
