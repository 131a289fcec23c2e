package history

// This file contains shared history utilities for storing, loading and
// selecting grading run history.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tubegrade/tubegrade/model"
)

const (
	// DirName is created at the repository root, or in the submission
	// directory when it is not inside a repository.
	DirName  = ".tubegrade"
	fileName = "history.json"
)

// ErrNoEntries is returned by Select when there is nothing to select from.
var ErrNoEntries = errors.New("no history entries found")

type Entry struct {
	History  model.History
	FullPath string
}

// Root returns the .tubegrade directory for dir.
func Root(dir string) string {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	if output, err := cmd.Output(); err == nil {
		return filepath.Join(strings.TrimSpace(string(output)), DirName)
	}
	return filepath.Join(dir, DirName)
}

// RunDir is the directory a run is recorded in:
// <root>/history/<timestamp>-<id8>.
func RunDir(root string, h model.History) string {
	shortID := h.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	name := fmt.Sprintf("%s-%s", h.Timestamp.Format("20060102-150405"), shortID)
	return filepath.Join(root, "history", name)
}

// Save writes h as history.json into runDir, creating it if needed.
func Save(runDir string, h model.History) error {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, fileName), data, 0o644); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

// LoadEntries loads all history entries below root, newest first. A
// missing root yields no entries.
func LoadEntries(logger zerolog.Logger, root string) ([]Entry, error) {
	var entries []Entry

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, os.ErrNotExist) {
				return filepath.SkipAll
			}
			return err
		}

		if d.IsDir() {
			historyPath := filepath.Join(path, fileName)
			if _, err := os.Stat(historyPath); err == nil {
				history, err := parseHistoryJSON(historyPath)
				if err != nil {
					logger.Warn().Err(err).Str("path", historyPath).Msg("Failed to parse history.json")
					return nil
				}

				entries = append(entries, Entry{
					History:  history,
					FullPath: path,
				})
			}
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk %s directory: %w", DirName, err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].History.Timestamp.After(entries[j].History.Timestamp)
	})

	return entries, nil
}

// Select picks an entry from newest-first entries. arg is "0" for the
// newest, "-N" for the N-th before it, or a case-insensitive ID prefix.
func Select(entries []Entry, arg string) (Entry, error) {
	if len(entries) == 0 {
		return Entry{}, ErrNoEntries
	}

	if parsed, err := strconv.ParseInt(arg, 10, 64); err == nil {
		if parsed > 0 {
			return Entry{}, fmt.Errorf("invalid index: %s (use 0 for last, -1 for second-to-last, -2 for third-to-last, etc.)", arg)
		}
		index := int(-parsed)
		if index >= len(entries) {
			return Entry{}, fmt.Errorf("index %s out of range (only %d history entries)", arg, len(entries))
		}
		return entries[index], nil
	}

	prefix := strings.ToLower(arg)
	for _, e := range entries {
		if strings.HasPrefix(strings.ToLower(e.History.ID), prefix) {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("no history entry found matching ID: %s", arg)
}

// parseHistoryJSON parses a history.json file.
func parseHistoryJSON(historyPath string) (model.History, error) {
	data, err := os.ReadFile(historyPath)
	if err != nil {
		return model.History{}, err
	}

	var history model.History
	if err := json.Unmarshal(data, &history); err != nil {
		return model.History{}, err
	}

	return history, nil
}
