package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"notelm/internal/api"
)

// UploadTask is the ephemeral progress record for one in-flight upload. The
// percentage is a heuristic simulation, not a transfer measurement: it climbs
// by a fixed step per tick, holds at 90 until the backend answers, and jumps
// to 100 on success.
type UploadTask struct {
	Key       string
	ProjectID string
	Filename  string
	StartedAt time.Time
	Progress  int
}

// Uploads returns the in-flight upload tasks, oldest first.
func (s *Store) Uploads() []UploadTask {
	s.mu.Lock()
	tasks := make([]UploadTask, 0, len(s.uploads))
	for _, task := range s.uploads {
		tasks = append(tasks, *task)
	}
	s.mu.Unlock()
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].StartedAt.Equal(tasks[j].StartedAt) {
			return tasks[i].Key < tasks[j].Key
		}
		return tasks[i].StartedAt.Before(tasks[j].StartedAt)
	})
	return tasks
}

// UploadDocument sends a local file to the backend for ingestion, tracking
// simulated progress while the request is outstanding. On success the
// returned Document is appended to the current project's list and the task
// lingers briefly at 100%; on failure the task disappears immediately and
// the error is returned.
func (s *Store) UploadDocument(ctx context.Context, projectID, path string) (api.Document, error) {
	key := s.beginUpload(projectID, filepath.Base(path))
	document, err := s.backend.UploadDocument(ctx, projectID, path)
	if err != nil {
		s.dropUpload(key)
		return api.Document{}, fmt.Errorf("upload document: %w", err)
	}
	s.finishUpload(key)
	s.appendDocument(projectID, document)
	return document, nil
}

func (s *Store) beginUpload(projectID, filename string) string {
	key := uuid.NewString()
	s.mutate(func() {
		s.uploads[key] = &UploadTask{
			Key:       key,
			ProjectID: projectID,
			Filename:  filename,
			StartedAt: time.Now(),
		}
	})
	go s.tickUpload(key)
	return key
}

// tickUpload advances the task until it is removed from the map, which is
// the goroutine's only exit condition.
func (s *Store) tickUpload(key string) {
	ticker := time.NewTicker(s.progressTick)
	defer ticker.Stop()
	for range ticker.C {
		s.mu.Lock()
		task, alive := s.uploads[key]
		advanced := false
		if alive && task.Progress < progressHold {
			task.Progress += s.progressStep
			if task.Progress > progressHold {
				task.Progress = progressHold
			}
			advanced = true
		}
		s.mu.Unlock()
		if !alive {
			return
		}
		if advanced {
			s.notify()
		}
	}
}

func (s *Store) finishUpload(key string) {
	s.mutate(func() {
		if task, ok := s.uploads[key]; ok {
			task.Progress = 100
		}
	})
	time.AfterFunc(s.removalDelay, func() { s.dropUpload(key) })
}

func (s *Store) dropUpload(key string) {
	s.mutate(func() { delete(s.uploads, key) })
}
