package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// FileSource reads the board from a JSON file. The file holds either an
// array of tasks or an object with a "tasks" array. It is re-read on every
// List so the snapshot is always fresh.
type FileSource struct {
	Path string
}

// NewFileSource creates a board reader for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// List implements Source.
func (s *FileSource) List(ctx context.Context, f Filter) ([]Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("reading task board: %w", err)
	}
	all, err := decodeBoard(data)
	if err != nil {
		return nil, fmt.Errorf("parsing task board %s: %w", s.Path, err)
	}
	return Static(all).List(ctx, f)
}

func decodeBoard(data []byte) ([]Task, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}
	var list []Task
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
	} else {
		var doc struct {
			Tasks []Task `json:"tasks"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		list = doc.Tasks
	}
	for i, t := range list {
		if t.Status == "" {
			list[i].Status = StatusPending
			continue
		}
		if err := ValidateStatus(t.Status); err != nil {
			return nil, fmt.Errorf("task %q: %w", t.ID, err)
		}
	}
	return list, nil
}

// Detect returns a board handle when one is configured and present.
// Callers branch on the boolean and never on tool names.
func Detect(path string) (Source, bool) {
	if path == "" {
		return nil, false
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, false
	}
	return NewFileSource(path), true
}
