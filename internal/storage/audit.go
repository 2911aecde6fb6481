package storage

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const maxEntries = 500

// AuditLog records command use in audit.txt, oldest entry first.
type AuditLog struct {
	path string
	log  *slog.Logger
	now  func() time.Time

	mu      sync.Mutex
	entries []string
}

// OpenAuditLog loads the audit log kept in dataDir.
func OpenAuditLog(dataDir string, log *slog.Logger) (*AuditLog, error) {
	if log == nil {
		log = slog.Default()
	}
	path := filepath.Join(dataDir, "audit.txt")
	lines, err := readLines(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	return &AuditLog{path: path, log: log, now: time.Now, entries: lines}, nil
}

// Record appends an entry and writes the log back to disk.
func (a *AuditLog) Record(hostmask, entry string) {
	timestamp := a.now().UTC().Format("Mon Jan 02, 2006 at 15:04:05 GMT")
	line := fmt.Sprintf("%s: %s -> %s", timestamp, hostmask, entry)

	a.mu.Lock()
	a.entries = AddEntry(a.entries, line)
	snapshot := append([]string(nil), a.entries...)
	a.mu.Unlock()

	if err := writeLines(a.path, snapshot); err != nil {
		a.log.Error("error saving audit log", "error", err)
	}
}

// Last returns up to n of the newest entries, newest first.
func (a *AuditLog) Last(n int) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n > len(a.entries) {
		n = len(a.entries)
	}
	return reverse(a.entries[len(a.entries)-n:])
}

// Search returns the entries containing substr, newest first.
func (a *AuditLog) Search(substr string) []string {
	substr = strings.ToLower(substr)
	a.mu.Lock()
	defer a.mu.Unlock()
	var found []string
	for i := len(a.entries) - 1; i >= 0; i-- {
		if strings.Contains(strings.ToLower(a.entries[i]), substr) {
			found = append(found, a.entries[i])
		}
	}
	return found
}

// AddEntry appends an entry, dropping the oldest past the cap.
func AddEntry(entries []string, entry string) []string {
	entries = append(entries, entry)
	if len(entries) > maxEntries {
		entries = entries[len(entries)-maxEntries:]
	}
	return entries
}

func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

func writeLines(path string, lines []string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return w.Flush()
}

func reverse(s []string) []string {
	result := make([]string, len(s))
	for i, v := range s {
		result[len(s)-1-i] = v
	}
	return result
}
