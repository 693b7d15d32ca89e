// Package feeder tails an inbox directory for change request documents.
//
// Discipline tools that cannot speak Redis drop YAML files into the inbox;
// the feeder debounces filesystem events until a file settles, converts the
// document into a change request, and submits it through the gateway.
// Processed files are renamed in place: ".done" on commit, ".err" on
// rejection, with the rejection reason in the daemon log.
package feeder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fairline/loft/internal/gateway"
	"github.com/fairline/loft/pkg/datum"
)

const (
	// DefaultRequester stamps inbox commits whose document names no requester.
	DefaultRequester = "inbox"

	doneSuffix = ".done"
	errSuffix  = ".err"
)

// Config holds the feeder's inbox settings, usually taken from the inbox
// block of loft.yml.
type Config struct {
	Dir      string        // Inbox directory to watch
	Include  []string      // Glob patterns relative to Dir that select documents
	Ignore   []string      // Glob patterns that exclude otherwise included files
	Debounce time.Duration // Quiet period before a changed file is processed
}

// Feeder watches one inbox directory and submits settled change request
// documents through the gateway.
type Feeder struct {
	gw     *gateway.Gateway
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	pending map[string]*time.Timer
	stopped bool
}

// New creates a feeder. The inbox directory must already exist.
func New(gw *gateway.Gateway, cfg Config, logger *zap.Logger) (*Feeder, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("inbox directory cannot be empty")
	}
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("inbox directory %s: %w", cfg.Dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("inbox path %s is not a directory", cfg.Dir)
	}
	if len(cfg.Include) == 0 {
		return nil, fmt.Errorf("inbox include patterns cannot be empty")
	}
	if cfg.Debounce <= 0 {
		return nil, fmt.Errorf("inbox debounce must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Feeder{
		gw:      gw,
		cfg:     cfg,
		logger:  logger.Named("feeder"),
		pending: make(map[string]*time.Timer),
	}, nil
}

// Run watches the inbox until the context is canceled. Files already
// present at startup are processed through the same debounce path as
// fresh drops, so nothing left behind by a dead daemon is lost.
func (f *Feeder) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create inbox watcher: %w", err)
	}
	defer watcher.Close()

	f.mu.Lock()
	f.ctx = ctx
	f.mu.Unlock()

	if err := f.addDir(watcher, f.cfg.Dir); err != nil {
		return fmt.Errorf("failed to watch inbox %s: %w", f.cfg.Dir, err)
	}

	f.logger.Info("inbox feeder started",
		zap.String("dir", f.cfg.Dir),
		zap.Strings("include", f.cfg.Include),
		zap.Duration("debounce", f.cfg.Debounce))

	for {
		select {
		case <-ctx.Done():
			f.stop()
			f.logger.Info("inbox feeder shutting down")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			f.handleEvent(watcher, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("inbox watcher error", zap.Error(err))
		}
	}
}

// addDir watches dir and its subdirectories, scheduling any eligible files
// already present.
func (f *Feeder) addDir(watcher *fsnotify.Watcher, dir string) error {
	if err := watcher.Add(dir); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if err := f.addDir(watcher, full); err != nil {
				f.logger.Warn("failed to watch inbox subdirectory",
					zap.String("path", full), zap.Error(err))
			}
			continue
		}
		if f.eligible(full) {
			f.schedule(full)
		}
	}

	return nil
}

func (f *Feeder) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := f.addDir(watcher, event.Name); err != nil {
				f.logger.Warn("failed to watch inbox subdirectory",
					zap.String("path", event.Name), zap.Error(err))
			}
			return
		}
	}

	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if f.eligible(event.Name) {
		f.schedule(event.Name)
	}
}

// eligible reports whether a path is a change request document: inside the
// inbox, matching an include glob, not ignored, and not already processed.
func (f *Feeder) eligible(path string) bool {
	rel, err := filepath.Rel(f.cfg.Dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)

	// Processed markers never re-enter the pipeline, whatever the globs say
	if strings.HasSuffix(rel, doneSuffix) || strings.HasSuffix(rel, errSuffix) {
		return false
	}

	included := false
	for _, pattern := range f.cfg.Include {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}

	for _, pattern := range f.cfg.Ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return false
		}
	}

	return true
}

// schedule arms (or re-arms) the debounce timer for one path. Every fresh
// write pushes processing back by the full quiet period, so a file still
// being copied is read only once it settles.
func (f *Feeder) schedule(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped {
		return
	}
	if timer, ok := f.pending[path]; ok {
		timer.Stop()
	}
	f.pending[path] = time.AfterFunc(f.cfg.Debounce, func() {
		f.deliver(path)
	})
}

func (f *Feeder) deliver(path string) {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	delete(f.pending, path)
	ctx := f.ctx
	f.mu.Unlock()

	f.process(ctx, path)
}

func (f *Feeder) stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stopped = true
	for _, timer := range f.pending {
		timer.Stop()
	}
	f.pending = make(map[string]*time.Timer)
}

// process reads, parses, and submits one settled document.
func (f *Feeder) process(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Renamed or removed after the event fired
			return
		}
		f.logger.Warn("failed to read inbox file", zap.String("path", path), zap.Error(err))
		return
	}

	req, err := f.buildRequest(ctx, data)
	if err != nil {
		f.reject(path, err)
		return
	}

	revisions, err := f.gw.SubmitChange(ctx, req)
	if err != nil {
		f.reject(path, err)
		return
	}

	if err := os.Rename(path, path+doneSuffix); err != nil {
		f.logger.Warn("failed to mark inbox file done", zap.String("path", path), zap.Error(err))
	}
	f.logger.Info("inbox change committed",
		zap.String("path", path),
		zap.String("request_id", req.ID),
		zap.Int("parameters", len(revisions)))
}

func (f *Feeder) reject(path string, cause error) {
	f.logger.Warn("rejected inbox file", zap.String("path", path), zap.Error(cause))
	if err := os.Rename(path, path+errSuffix); err != nil {
		f.logger.Warn("failed to mark inbox file rejected", zap.String("path", path), zap.Error(err))
	}
}

// document is the on-disk YAML shape of an inbox change request.
type document struct {
	Requester string           `yaml:"requester"`
	Base      map[string]int64 `yaml:"base"`
	Writes    map[string]any   `yaml:"writes"`
}

// buildRequest converts a parsed document into a change request. Writes
// without a declared base revision take the parameter's current revision;
// the commit still fails with a conflict if someone else writes in between.
func (f *Feeder) buildRequest(ctx context.Context, data []byte) (*datum.ChangeRequest, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse change document: %w", err)
	}
	if len(doc.Writes) == 0 {
		return nil, fmt.Errorf("change document writes no parameters")
	}
	if doc.Requester == "" {
		doc.Requester = DefaultRequester
	}

	req := &datum.ChangeRequest{
		ID:            uuid.New().String(),
		RequesterID:   doc.Requester,
		BaseRevisions: make(map[string]int64, len(doc.Writes)),
		Writes:        make(map[string]datum.Value, len(doc.Writes)),
		SubmittedAtMs: time.Now().UnixMilli(),
	}

	for id, raw := range doc.Writes {
		value, err := datum.ValueFromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %q: %w", id, err)
		}
		req.Writes[id] = value

		if base, ok := doc.Base[id]; ok {
			req.BaseRevisions[id] = base
			continue
		}

		current, err := f.gw.GetParameter(ctx, id)
		if err != nil {
			if datum.IsNotFound(err) {
				return nil, fmt.Errorf("unknown parameter %q", id)
			}
			return nil, fmt.Errorf("failed to read current revision of %q: %w", id, err)
		}
		req.BaseRevisions[id] = current.Revision
	}

	return req, nil
}
