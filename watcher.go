package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/alefaraci/GoDVI/internal/logging"
)

// pathLocker provides per-path mutual exclusion.
type pathLocker struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	sync.Mutex
	refs int
}

func newPathLocker() *pathLocker {
	return &pathLocker{locks: make(map[string]*pathLock)}
}

func (pl *pathLocker) Lock(path string) {
	pl.mu.Lock()
	l, ok := pl.locks[path]
	if !ok {
		l = &pathLock{}
		pl.locks[path] = l
	}
	l.refs++
	pl.mu.Unlock()
	l.Lock()
}

// Unlock releases path. The entry is dropped once no goroutine holds or
// waits for it.
func (pl *pathLocker) Unlock(path string) {
	pl.mu.Lock()
	l, ok := pl.locks[path]
	if !ok {
		pl.mu.Unlock()
		return
	}
	l.refs--
	if l.refs == 0 {
		delete(pl.locks, path)
	}
	pl.mu.Unlock()
	l.Unlock()
}

// debouncer coalesces rapid event bursts into a single callback per file.
type debouncer struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	delay  time.Duration
	onFire func(path string)
}

func newDebouncer(delay time.Duration, onFire func(path string)) *debouncer {
	return &debouncer{
		timers: make(map[string]*time.Timer),
		delay:  delay,
		onFire: onFire,
	}
}

func (d *debouncer) trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[path]; ok {
		t.Reset(d.delay)
		return
	}
	d.timers[path] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		delete(d.timers, path)
		d.mu.Unlock()
		d.onFire(path)
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for path, t := range d.timers {
		t.Stop()
		delete(d.timers, path)
	}
}


func runWatchMode(cfg *Config) error {
	log := logging.WithComponent(logging.ComponentWatcher)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	for _, dir := range cfg.Watch.InputDirs() {
		if err := watchRecursive(w, dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		log.Info("watching", "dir", dir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outLock := newPathLocker()

	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	var wg sync.WaitGroup

	db := newDebouncer(500*time.Millisecond, func(path string) {
		j := classifyEvent(path, cfg)
		if j == nil {
			return
		}
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer func() { <-sem; wg.Done() }()
			outLock.Lock(j.output)
			defer outLock.Unlock(j.output)
			if recheck := classifyEvent(path, cfg); recheck == nil {
				return
			}
			convertJob(*j, cfg)
		}()
	})
	defer db.stop()

	initialScan(cfg, outLock)

	log.Info("daemon ready, waiting for file changes")

	// Polling fallback for network filesystems where events don't fire
	go pollLoop(ctx, cfg, cfg.Watch.PollDuration(), func(path string) {
		db.trigger(path)
	}, func(path string) {
		handleDeletion(path, cfg)
	})

	eventLoop(ctx, w, db, cfg)

	log.Info("shutting down, waiting for in-flight conversions")
	wg.Wait()
	log.Info("shutdown complete")
	return nil
}

func watchRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

func isSource(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".dvi")
}

// initialScan processes stale files in watched directories.
// Jobs are deduplicated by output path to prevent concurrent writes.
func initialScan(cfg *Config, outLock *pathLocker) {
	syncOrphanedOutputs(cfg)

	jobs := make(map[string]convJob)

	for _, dir := range cfg.Watch.InputDirs() {
		filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() || !isSource(path) {
				return nil
			}
			if j := classifyEvent(path, cfg); j != nil {
				jobs[j.output] = *j
			}
			return nil
		})
	}

	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer func() { <-sem; wg.Done() }()
			outLock.Lock(j.output)
			defer outLock.Unlock(j.output)
			convertJob(j, cfg)
		}()
	}
	wg.Wait()
}

func eventLoop(ctx context.Context, w *fsnotify.Watcher, db *debouncer, cfg *Config) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Remove) {
				if isSource(ev.Name) {
					handleDeletion(ev.Name, cfg)
				}
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					watchRecursive(w, ev.Name)
					continue
				}
			}
			// Atomic file replacement (common on macOS/kqueue): verify the
			// renamed path still exists and re-add parent for inode tracking.
			if ev.Has(fsnotify.Rename) {
				if _, err := os.Stat(ev.Name); err != nil {
					continue
				}
				w.Add(filepath.Dir(ev.Name))
			}
			db.trigger(ev.Name)

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logging.WarnWithComponent(logging.ComponentWatcher, "watcher error", "error", err)
		}
	}
}

// pollLoop walks input directories at a fixed interval to detect mtime
// changes on filesystems that don't deliver events.
func pollLoop(ctx context.Context, cfg *Config, interval time.Duration, onChanged func(path string), onDeleted func(path string)) {
	mtimes := make(map[string]time.Time)
	prevSources := make(map[string]bool)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sources := make(map[string]bool)
		for _, dir := range cfg.Watch.InputDirs() {
			filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
				if err != nil || d.IsDir() || !isSource(path) {
					return nil
				}
				sources[path] = true
				info, err := d.Info()
				if err != nil {
					return nil
				}
				mt := info.ModTime()
				if prev, ok := mtimes[path]; !ok || !mt.Equal(prev) {
					mtimes[path] = mt
					onChanged(path)
				}
				return nil
			})
		}

		for path := range prevSources {
			if !sources[path] {
				onDeleted(path)
			}
		}
		prevSources = sources

		for path := range sources {
			out := outputPathForSource(path, cfg)
			if out == "" {
				continue
			}
			if !isUpToDate(path, out) {
				onChanged(path)
			}
		}

		for path := range mtimes {
			if !sources[path] {
				delete(mtimes, path)
			}
		}
	}
}

// classifyEvent returns the conversion a change to path calls for, or nil
// when path is not a watched source or its output is current.
func classifyEvent(path string, cfg *Config) *convJob {
	if !isSource(path) {
		return nil
	}
	out := outputPathForSource(path, cfg)
	if out == "" || isUpToDate(path, out) {
		return nil
	}
	return &convJob{input: path, output: out}
}

func convertJob(j convJob, cfg *Config) {
	log := logging.WithComponent(logging.ComponentWatcher)
	if dir := filepath.Dir(j.output); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Error("creating directory", "dir", dir, "error", err)
			return
		}
	}

	start := time.Now()
	// TeX may still be writing the file; a truncated DVI fails here and is
	// retried on the next change.
	if err := ExportDVI(j.input, j.output, false, cfg); err != nil {
		log.Warn("conversion failed", "input", j.input, "error", err)
		return
	}
	log.Info("converted",
		"input", filepath.Base(j.input),
		"output", filepath.Base(j.output),
		"elapsed", time.Since(start))
}

func sourceDir(path string, cfg *Config) string {
	for _, dir := range cfg.Watch.InputDirs() {
		if isUnderDir(path, dir) {
			return dir
		}
	}
	return ""
}

func outputPath(path, srcDir, outDir, oldExt, newExt string) string {
	rel, _ := filepath.Rel(srcDir, path)
	return filepath.Join(outDir, strings.TrimSuffix(rel, oldExt)+newExt)
}

func isUnderDir(path, dir string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	return strings.HasPrefix(absPath, absDir+string(filepath.Separator)) || absPath == absDir
}

func outputPathForSource(path string, cfg *Config) string {
	srcDir := sourceDir(path, cfg)
	if srcDir == "" || !isSource(path) {
		return ""
	}
	return outputPath(path, srcDir, cfg.Watch.Location, filepath.Ext(path), "."+cfg.Output.Format)
}

// handleDeletion removes the outputs of a deleted source file and cleans
// up empty parent directories up to the output root.
func handleDeletion(path string, cfg *Config) {
	out := outputPathForSource(path, cfg)
	if out == "" {
		return
	}
	log := logging.WithComponent(logging.ComponentWatcher)
	ext := filepath.Ext(out)
	numbered, _ := filepath.Glob(strings.TrimSuffix(out, ext) + "-[0-9]*" + ext)
	removed := false
	for _, p := range append([]string{out}, numbered...) {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := os.Remove(p); err != nil {
			log.Error("removing output", "path", p, "error", err)
			continue
		}
		log.Info("removed output, source deleted", "path", filepath.Base(p))
		removed = true
	}
	if removed {
		removeEmptyParents(filepath.Dir(out), cfg.Watch.Location)
	}
}

func removeEmptyParents(dir, stopDir string) {
	absStop, err := filepath.Abs(stopDir)
	if err != nil {
		return
	}
	for {
		absDir, err := filepath.Abs(dir)
		if err != nil || absDir == absStop {
			return
		}
		if !strings.HasPrefix(absDir, absStop+string(filepath.Separator)) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func syncOrphanedOutputs(cfg *Config) {
	outDir := cfg.Watch.Location
	if outDir == "" {
		return
	}
	ext := "." + cfg.Output.Format
	filepath.WalkDir(outDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ext) {
			return nil
		}
		if hasSourceFile(path, cfg) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			logging.ErrorWithComponent(logging.ComponentWatcher, "removing orphaned output", "path", path, "error", err)
		} else {
			logging.InfoWithComponent(logging.ComponentWatcher, "removed orphaned output", "path", filepath.Base(path))
			removeEmptyParents(filepath.Dir(path), outDir)
		}
		return nil
	})
}

// hasSourceFile reports whether output has a DVI source in a watched
// directory. Numbered PNG pages ("name-3.png") map back to "name.dvi".
func hasSourceFile(output string, cfg *Config) bool {
	rel, err := filepath.Rel(cfg.Watch.Location, output)
	if err != nil {
		return false
	}
	base := strings.TrimSuffix(rel, filepath.Ext(rel))
	candidates := []string{base}
	if i := strings.LastIndexByte(base, '-'); i > 0 && isDigits(base[i+1:]) {
		candidates = append(candidates, base[:i])
	}
	for _, dir := range cfg.Watch.InputDirs() {
		for _, c := range candidates {
			if _, err := os.Stat(filepath.Join(dir, c+".dvi")); err == nil {
				return true
			}
		}
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := range len(s) {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
