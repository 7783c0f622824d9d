// Package content resolves the freshest known contents of a file, merging
// unsaved editor text with what is on disk.
package content

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("treedeco.content")

// ErrNotFound is returned when a path exists neither on disk nor in the
// editor.
var ErrNotFound = errors.New("content not found")

// Source tells where resolved contents came from.
type Source int

const (
	SourceDisk Source = iota
	SourceEditor
)

func (s Source) String() string {
	if s == SourceEditor {
		return "editor"
	}
	return "disk"
}

// FileStat is the subset of file metadata the resolver needs.
type FileStat struct {
	ModTime time.Time
	Size    int64
}

// FileSystem is the disk boundary.
type FileSystem interface {
	Stat(path string) (FileStat, error)
	ReadFile(path string) ([]byte, error)
}

// OSFileSystem reads from the local disk.
type OSFileSystem struct{}

func (OSFileSystem) Stat(path string) (FileStat, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileStat{}, err
	}
	if info.IsDir() {
		return FileStat{}, fmt.Errorf("%s: is a directory", path)
	}
	return FileStat{ModTime: info.ModTime(), Size: info.Size()}, nil
}

func (OSFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Record is the editor-side version of a file.
type Record struct {
	Contents     []byte
	LastModified time.Time
}

// Resolved is the outcome of ResolveLatest.
type Resolved struct {
	Contents     []byte
	LastModified time.Time
	Source       Source
}

// WatchFunc is called with the new timestamp when the editor record of a
// watched path changes.
type WatchFunc func(lastModified time.Time)

// Resolver tracks editor records per path and resolves them against disk.
type Resolver struct {
	fs  FileSystem
	now func() time.Time

	mu       sync.Mutex
	records  map[string]Record
	watchers map[string]map[int]WatchFunc
	nextID   int
}

// New creates a Resolver reading disk state through fsys. A nil now uses
// time.Now.
func New(fsys FileSystem, now func() time.Time) *Resolver {
	if fsys == nil {
		fsys = OSFileSystem{}
	}
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		fs:       fsys,
		now:      now,
		records:  make(map[string]Record),
		watchers: make(map[string]map[int]WatchFunc),
	}
}

// Update records new editor contents for path, stamped with the current
// time, and notifies its watchers.
func (r *Resolver) Update(path string, contents []byte) time.Time {
	at := r.now()
	r.UpdateAt(path, contents, at)
	return at
}

// UpdateAt records new editor contents for path with an explicit timestamp.
// Watchers run on the caller's goroutine after the lock is released, once
// each.
func (r *Resolver) UpdateAt(path string, contents []byte, at time.Time) {
	path = filepath.Clean(path)

	r.mu.Lock()
	r.records[path] = Record{Contents: contents, LastModified: at}
	fns := r.watchersLocked(path)
	r.mu.Unlock()

	for _, fn := range fns {
		fn(at)
	}
}

func (r *Resolver) watchersLocked(path string) []WatchFunc {
	set := r.watchers[path]
	if len(set) == 0 {
		return nil
	}
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]WatchFunc, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, set[id])
	}
	return fns
}

// Editor returns the editor record of path, if any.
func (r *Resolver) Editor(path string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[filepath.Clean(path)]
	return rec, ok
}

// Discard drops the editor record of path. Watchers stay registered.
func (r *Resolver) Discard(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, filepath.Clean(path))
}

// Watch registers fn for editor updates of path and returns a function that
// removes it.
func (r *Resolver) Watch(path string, fn WatchFunc) (unwatch func()) {
	path = filepath.Clean(path)

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	if r.watchers[path] == nil {
		r.watchers[path] = make(map[int]WatchFunc)
	}
	r.watchers[path][id] = fn
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.watchers[path], id)
			if len(r.watchers[path]) == 0 {
				delete(r.watchers, path)
			}
		})
	}
}

// ResolveLatest returns the newest known contents of path. Disk wins when
// its modification time is equal to or newer than the editor record.
func (r *Resolver) ResolveLatest(path string) (Resolved, error) {
	path = filepath.Clean(path)
	rec, haveEditor := r.Editor(path)

	st, err := r.fs.Stat(path)
	if err != nil {
		if haveEditor {
			log.Debugf("stat %s failed, using editor contents: %s", path, err)
			return fromEditor(rec), nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return Resolved{}, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return Resolved{}, fmt.Errorf("stat %s: %w", path, err)
	}

	if haveEditor && rec.LastModified.After(st.ModTime) {
		return fromEditor(rec), nil
	}

	data, err := r.fs.ReadFile(path)
	if err != nil {
		if haveEditor {
			return fromEditor(rec), nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return Resolved{}, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return Resolved{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return Resolved{Contents: data, LastModified: st.ModTime, Source: SourceDisk}, nil
}

func fromEditor(rec Record) Resolved {
	return Resolved{Contents: rec.Contents, LastModified: rec.LastModified, Source: SourceEditor}
}
