// Package watcher reloads chart directories when their files change.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jobrunner/charttiler/internal/domain"
)

// Event reports that the chart files of one directory changed. An event
// without files means the directory itself disappeared.
type Event struct {
	Dir       string
	Files     []string
	Operation Operation
}

// Operation is the net effect of the file events folded into an Event.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Handler is called once per directory after its events settle. Calls for
// the same directory never overlap.
type Handler func(ctx context.Context, event Event) error

// Config holds watcher configuration.
type Config struct {
	Paths    []string
	Debounce time.Duration // default 2s
}

// dirState collects the events of one directory until it goes quiet.
type dirState struct {
	op    Operation
	files map[string]struct{}
	gone  bool
	timer *time.Timer
}

// Watcher watches chart directories. Copying many cells into a directory
// yields a single event once no file changed for the debounce interval.
type Watcher struct {
	fs       *fsnotify.Watcher
	handler  Handler
	logger   *slog.Logger
	paths    []string
	debounce time.Duration

	mu      sync.Mutex
	ctx     context.Context
	watched map[string]struct{}
	dirs    map[string]*dirState
	runs    map[string]*sync.Mutex // serializes handler calls per directory
	stopped bool
}

// New creates a watcher. Nothing is watched before Start.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}

	return &Watcher{
		fs:       fsw,
		handler:  handler,
		logger:   logger,
		paths:    cfg.Paths,
		debounce: cfg.Debounce,
		ctx:      context.Background(),
		watched:  make(map[string]struct{}),
		dirs:     make(map[string]*dirState),
		runs:     make(map[string]*sync.Mutex),
	}, nil
}

// Start watches the configured paths and processes events until ctx ends
// or Stop is called. Paths that cannot be watched are logged and skipped.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	for _, path := range w.paths {
		if err := w.AddPath(path); err != nil {
			w.logger.Warn("failed to watch path", "path", path, "error", err)
		}
	}

	go w.loop(ctx)
	return nil
}

// Stop ends watching and drops events that have not settled yet.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	w.stopped = true
	for dir, st := range w.dirs {
		if st.timer != nil {
			st.timer.Stop()
		}
		delete(w.dirs, dir)
	}
	w.mu.Unlock()

	return w.fs.Close()
}

// AddPath watches a directory. Adding a watched directory again is a no-op.
func (w *Watcher) AddPath(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[abs]; ok {
		return nil
	}
	if err := w.fs.Add(abs); err != nil {
		return err
	}
	w.watched[abs] = struct{}{}

	w.logger.Info("watching chart directory", "path", abs)
	return nil
}

// RemovePath stops watching a directory.
func (w *Watcher) RemovePath(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[abs]; !ok {
		return nil
	}
	delete(w.watched, abs)
	if err := w.fs.Remove(abs); err != nil {
		return err
	}

	w.logger.Info("stopped watching chart directory", "path", abs)
	return nil
}

// Watched returns the watched directories in order.
func (w *Watcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	paths := make([]string, 0, len(w.watched))
	for p := range w.watched {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.record(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// record folds one file system event into the pending state of its
// directory and restarts that directory's debounce timer.
func (w *Watcher) record(event fsnotify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}

	dir, name := filepath.Dir(event.Name), filepath.Base(event.Name)
	gone := false
	if _, ok := w.watched[event.Name]; ok && opOf(event.Op) == OpDelete {
		// The watched directory itself was removed or moved away.
		dir, name, gone = event.Name, "", true
		delete(w.watched, event.Name)
	} else if !domain.IsCatalogFile(name) {
		return
	}

	w.logger.Debug("chart file event", "path", event.Name, "op", event.Op.String())

	st, ok := w.dirs[dir]
	if !ok {
		st = &dirState{op: opOf(event.Op), files: make(map[string]struct{})}
		w.dirs[dir] = st
	} else {
		st.op = mergeOperation(st.op, opOf(event.Op))
	}
	if name != "" {
		st.files[name] = struct{}{}
	}
	st.gone = st.gone || gone

	if st.timer == nil {
		st.timer = time.AfterFunc(w.debounce, func() { w.flush(dir) })
	} else {
		st.timer.Reset(w.debounce)
	}
}

// flush hands the settled events of dir to the handler.
func (w *Watcher) flush(dir string) {
	w.mu.Lock()
	st, ok := w.dirs[dir]
	if !ok || w.stopped {
		w.mu.Unlock()
		return
	}
	delete(w.dirs, dir)
	ctx := w.ctx
	run, ok := w.runs[dir]
	if !ok {
		run = &sync.Mutex{}
		w.runs[dir] = run
	}
	w.mu.Unlock()

	event := Event{Dir: dir, Operation: st.op}
	if st.gone {
		event.Operation = OpDelete
	} else {
		event.Files = make([]string, 0, len(st.files))
		for f := range st.files {
			event.Files = append(event.Files, f)
		}
		sort.Strings(event.Files)
	}

	w.logger.Info("chart directory changed",
		"dir", dir,
		"files", len(event.Files),
		"operation", event.Operation.String(),
	)

	run.Lock()
	defer run.Unlock()

	if err := w.handler(ctx, event); err != nil {
		w.logger.Error("chart directory reload failed",
			"dir", dir,
			"operation", event.Operation.String(),
			"error", err,
		)
	}
}

// mergeOperation folds a new operation into a pending one. A delete wins
// over everything except a later create.
func mergeOperation(existing, next Operation) Operation {
	switch {
	case next == OpCreate && existing != OpCreate:
		return OpCreate
	case next == OpDelete:
		return OpDelete
	default:
		return existing
	}
}

func opOf(op fsnotify.Op) Operation {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpDelete
	case op.Has(fsnotify.Create):
		return OpCreate
	default:
		return OpModify
	}
}
