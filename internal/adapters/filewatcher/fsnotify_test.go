package filewatcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/datachat/datachat-go/internal/domain/ports"
)

func TestWatcherCreation(t *testing.T) {
	watcher, err := NewFSNotifyWatcher([]string{".txt", ".pdf"}, nil)
	if err != nil {
		t.Fatalf("NewFSNotifyWatcher: %v", err)
	}
	defer watcher.Stop()
}

func TestWatcherDefaultExtensions(t *testing.T) {
	watcher, err := NewFSNotifyWatcher(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Stop()

	if len(watcher.extensions) != 3 {
		t.Errorf("expected 3 default extensions, got %d", len(watcher.extensions))
	}
}

func TestWatcherEmitsCreateEvent(t *testing.T) {
	dir := t.TempDir()

	watcher, err := NewFSNotifyWatcher([]string{".txt"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := watcher.Watch(ctx, dir)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		os.WriteFile(filepath.Join(dir, "test.txt"), []byte("hi"), 0o644)
	}()

	select {
	case event := <-events:
		if event.Operation != ports.FileCreated {
			t.Errorf("operation = %v, want FileCreated", event.Operation)
		}
		if filepath.Base(event.Path) != "test.txt" {
			t.Errorf("path = %q", event.Path)
		}
	case <-ctx.Done():
		t.Error("timeout waiting for create event")
	}
}

func TestWatcherEmitsDeleteEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doomed.txt")
	if err := os.WriteFile(path, []byte("bye"), 0o644); err != nil {
		t.Fatal(err)
	}

	watcher, err := NewFSNotifyWatcher([]string{".txt"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := watcher.Watch(ctx, dir)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		os.Remove(path)
	}()

	for {
		select {
		case event := <-events:
			if event.Operation == ports.FileDeleted {
				return
			}
		case <-ctx.Done():
			t.Fatal("timeout waiting for delete event")
		}
	}
}

func TestWatcherFiltersByExtension(t *testing.T) {
	dir := t.TempDir()

	watcher, err := NewFSNotifyWatcher([]string{".txt"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	events, err := watcher.Watch(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}

	os.WriteFile(filepath.Join(dir, "config.json"), []byte("{}"), 0o644)

	select {
	case event := <-events:
		t.Errorf("unexpected event for unwatched extension: %+v", event)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherStop(t *testing.T) {
	watcher, err := NewFSNotifyWatcher(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := watcher.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
