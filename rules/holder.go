package rules

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Holder keeps the live catalog for a rules file. Readers take a snapshot
// with Current; a reload swaps in a whole new Catalog.
type Holder struct {
	path     string
	logger   *slog.Logger
	debounce time.Duration

	cur     atomic.Pointer[Catalog]
	reloads atomic.Int64

	// OnReload, when set, is called after every reload attempt. cat is nil
	// when err is not.
	OnReload func(cat *Catalog, err error)
}

// NewHolder loads the rules file (or defaults when it does not exist).
func NewHolder(path string, logger *slog.Logger) (*Holder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cat, err := Load(path)
	if err != nil {
		return nil, err
	}
	h := &Holder{path: path, logger: logger, debounce: 200 * time.Millisecond}
	h.cur.Store(cat)
	return h, nil
}

// NewStaticHolder wraps an already compiled catalog. Reload is a no-op.
func NewStaticHolder(cat *Catalog) *Holder {
	h := &Holder{logger: slog.Default()}
	h.cur.Store(cat)
	return h
}

func (h *Holder) Path() string { return h.path }

// Current returns the catalog in effect. A pass should call it once and use
// the result throughout.
func (h *Holder) Current() *Catalog { return h.cur.Load() }

// Reloads is the number of successful reloads so far.
func (h *Holder) Reloads() int64 { return h.reloads.Load() }

// Reload re-reads the file. On error the previous catalog stays in effect.
func (h *Holder) Reload() error {
	if h.path == "" {
		return nil
	}
	cat, err := Load(h.path)
	if err != nil {
		h.logger.Error("rules reload failed; keeping previous catalog", "path", h.path, "err", err)
		if h.OnReload != nil {
			h.OnReload(nil, err)
		}
		return err
	}
	h.cur.Store(cat)
	h.reloads.Add(1)
	h.logger.Info("rules reloaded", "path", h.path, "version", cat.doc.Version)
	if h.OnReload != nil {
		h.OnReload(cat, nil)
	}
	return nil
}

// Watch reloads the rules file whenever it changes, until ctx is done.
// The parent directory is watched so editors that replace the file by
// rename are still seen.
func (h *Holder) Watch(ctx context.Context) error {
	if h.path == "" {
		<-ctx.Done()
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("rules watch: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(h.path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("rules watch %s: %w", filepath.Dir(abs), err)
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(h.debounce)
			} else {
				timer.Reset(h.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			_ = h.Reload()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			h.logger.Warn("rules watch error", "err", err)
		}
	}
}
