package gddns

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultCacheDir is used when neither the command line nor the config file name a cache directory.
const DefaultCacheDir = "/var/cache/gddns"

// watchQueueSize bounds the number of pending change notifications.
// Overflowing it only forces a full invalidation, so it does not need to be large.
const watchQueueSize = 64

// CacheEntry is the last outcome recorded for a hostname and when it was recorded.
type CacheEntry struct {
	Outcome Outcome
	Time    time.Time
}

// CorruptEntryError is returned by ResponseCache.Get when a cache file exists
// but does not hold a valid outcome.
type CorruptEntryError struct {
	Path string
	Err  error
}

func (e *CorruptEntryError) Error() string {
	return fmt.Sprintf("bad cache entry %s: %s", e.Path, e.Err)
}

func (e *CorruptEntryError) Unwrap() error { return e.Err }

// ResponseCache is a cache of past runs used to prevent repeated requests to the update endpoint.
//
// The cache consists of a base directory containing one file per hostname.
// The file is named after the hostname and contains the canonical text of the last Outcome;
// its modification time is the time the outcome was recorded.
// Hostnames must not contain path separators.
//
// Entries read from disk are kept in memory until CheckDiskChanges observes a change to the directory.
// Only one goroutine may call Get, Put, Clear and CheckDiskChanges;
// the watcher started by Watch never touches the in-memory entries.
type ResponseCache struct {
	dir     string
	entries map[string]CacheEntry
	logger  *zap.Logger
	now     func() time.Time

	watcher    *fsnotify.Watcher
	events     chan fsnotify.Event
	lostEvents atomic.Bool
	stop       context.CancelFunc
	done       chan struct{}
}

// CacheOption configures a ResponseCache.
type CacheOption func(*ResponseCache)

// CacheWithLogger sets the logger. A nil logger discards log output.
func CacheWithLogger(logger *zap.Logger) CacheOption {
	return func(c *ResponseCache) { c.logger = orNop(logger) }
}

// CacheWithClock overrides the clock used to timestamp new entries.
func CacheWithClock(now func() time.Time) CacheOption {
	return func(c *ResponseCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewResponseCache returns a cache stored in dir. The directory is created on the first Put.
func NewResponseCache(dir string, options ...CacheOption) *ResponseCache {
	c := &ResponseCache{
		dir:     dir,
		entries: make(map[string]CacheEntry),
		logger:  nopLogger,
		now:     time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Dir returns the cache directory.
func (c *ResponseCache) Dir() string { return c.dir }

// Get returns the cached outcome for hostname.
//
// found is false if there is no cache file.
// A cache file that cannot be decoded yields a *CorruptEntryError;
// deciding what to do about it is left to the caller.
func (c *ResponseCache) Get(hostname string) (entry CacheEntry, found bool, err error) {
	if entry, ok := c.entries[hostname]; ok {
		return entry, true, nil
	}

	path := c.cacheFile(hostname)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return CacheEntry{}, false, nil
	}
	if err != nil {
		return CacheEntry{}, false, fmt.Errorf("reading cache file: %w", err)
	}
	o, err := ParseOutcome(string(data))
	if err != nil {
		return CacheEntry{}, false, &CorruptEntryError{Path: path, Err: err}
	}
	info, err := os.Stat(path)
	if err != nil {
		return CacheEntry{}, false, fmt.Errorf("reading cache file modification time: %w", err)
	}

	entry = CacheEntry{Outcome: o, Time: info.ModTime()}
	c.entries[hostname] = entry
	return entry, true, nil
}

// Put records o as the latest outcome for hostname.
//
// Nothing is written if the in-memory entry already holds an equal outcome,
// which keeps the file's modification time (and so any backoff window) unchanged.
// Otherwise the cache directory is created if needed and the file is overwritten.
//
// Error text is stored on a single line: line breaks are folded into spaces.
// A Good or NoChg without a valid address is rejected.
func (c *ResponseCache) Put(hostname string, o Outcome) error {
	o, err := storable(o)
	if err != nil {
		return err
	}
	if entry, ok := c.entries[hostname]; ok && entry.Outcome == o {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	if err := os.WriteFile(c.cacheFile(hostname), []byte(FormatOutcome(o)), 0o644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	c.entries[hostname] = CacheEntry{Outcome: o, Time: c.now()}
	return nil
}

// Forget drops the in-memory entry for hostname without touching the disk,
// so that the next Put writes the file even if the outcome is unchanged.
func (c *ResponseCache) Forget(hostname string) {
	delete(c.entries, hostname)
}

// Clear removes the cached outcome for hostname from memory and disk.
// It returns an error wrapping fs.ErrNotExist if there was no cache file.
func (c *ResponseCache) Clear(hostname string) error {
	delete(c.entries, hostname)
	if err := os.Remove(c.cacheFile(hostname)); err != nil {
		return fmt.Errorf("removing cache file: %w", err)
	}
	return nil
}

// Hostnames lists the hostnames that have a cache file, sorted.
func (c *ResponseCache) Hostnames() ([]string, error) {
	dirents, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing cache directory: %w", err)
	}
	var names []string
	for _, d := range dirents {
		if d.Type().IsRegular() {
			names = append(names, d.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Watch starts a background goroutine that queues change notifications for the cache directory,
// creating the directory first if necessary.
// The notifications are consumed by CheckDiskChanges.
// The watcher runs until ctx is done or Close is called.
func (c *ResponseCache) Watch(ctx context.Context) error {
	if c.watcher != nil {
		return errors.New("cache directory is already being watched")
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating cache watcher: %w", err)
	}
	if err := watcher.Add(c.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching cache directory %s: %w", c.dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	c.watcher = watcher
	c.events = make(chan fsnotify.Event, watchQueueSize)
	c.stop = cancel
	c.done = make(chan struct{})
	go c.forwardEvents(ctx)
	c.logger.Debug("watching cache directory", zap.String("dir", c.dir))
	return nil
}

// forwardEvents is the producer side of the watch queue.
// When the queue is full the event is dropped and lostEvents is set instead,
// which makes the next CheckDiskChanges invalidate everything.
func (c *ResponseCache) forwardEvents(ctx context.Context) {
	defer close(c.done)
	defer c.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			select {
			case c.events <- e:
			default:
				c.lostEvents.Store(true)
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warn("cache watcher error", zap.String("dir", c.dir), zap.Error(err))
			c.lostEvents.Store(true)
		}
	}
}

// CheckDiskChanges drains the change notifications queued since the last call.
// If any of them is more than an attribute change, every in-memory entry is dropped
// so that the next Get reads from disk again.
// It reports whether the in-memory entries were invalidated.
func (c *ResponseCache) CheckDiskChanges() bool {
	invalidate := c.lostEvents.Swap(false)
	for {
		select {
		case e := <-c.events:
			if isContentChange(e) {
				c.logger.Debug("cache directory changed", zap.String("event", e.String()))
				invalidate = true
			}
			continue
		default:
		}
		break
	}
	if invalidate {
		clear(c.entries)
	}
	return invalidate
}

// Close stops the watcher started by Watch, if any.
func (c *ResponseCache) Close() error {
	if c.stop == nil {
		return nil
	}
	c.stop()
	<-c.done
	return nil
}

// storable returns o in the form written to disk.
func storable(o Outcome) (Outcome, error) {
	switch v := o.(type) {
	case Good:
		if !v.Addr.IsValid() {
			return nil, errors.New("refusing to cache good outcome without an address")
		}
	case NoChg:
		if !v.Addr.IsValid() {
			return nil, errors.New("refusing to cache nochg outcome without an address")
		}
	case FatalError:
		v.Text = singleLine(v.Text)
		return v, nil
	case RetryableError:
		v.Text = singleLine(v.Text)
		return v, nil
	default:
		panic(fmt.Sprintf("gddns: unknown outcome type %T", o))
	}
	return o, nil
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func singleLine(text string) string {
	return lineBreaks.Replace(strings.TrimRight(text, "\r\n"))
}

func isContentChange(e fsnotify.Event) bool {
	return e.Has(fsnotify.Create) || e.Has(fsnotify.Write) || e.Has(fsnotify.Remove) || e.Has(fsnotify.Rename)
}

func (c *ResponseCache) cacheFile(hostname string) string {
	return filepath.Join(c.dir, hostname)
}
