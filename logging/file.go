package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// RotatingFile is an io.Writer for log lines that starts a new file once the
// current one would exceed MaxBytes or is a day old. Rotated files are
// gzipped and only the newest Keep are retained.
type RotatingFile struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	keep     int
	now      func() time.Time

	file     *os.File
	size     int64
	openedAt time.Time
	wg       sync.WaitGroup
	// bg serialises compression and pruning of rotated files.
	bg sync.Mutex
}

// OpenRotatingFile opens (or creates) name inside dir for appending.
func OpenRotatingFile(dir, name string, maxBytes int64, keep int) (*RotatingFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	if keep <= 0 {
		keep = 5
	}
	rf := &RotatingFile{
		path:     filepath.Join(dir, name),
		maxBytes: maxBytes,
		keep:     keep,
		now:      time.Now,
	}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

// Path is the file currently written to.
func (rf *RotatingFile) Path() string {
	return rf.path
}

func (rf *RotatingFile) open() error {
	f, err := os.OpenFile(rf.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	rf.file = f
	rf.size = info.Size()
	rf.openedAt = rf.now()
	return nil
}

// Write appends p, rotating first when needed.
func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.file == nil {
		return 0, os.ErrClosed
	}
	if rf.size > 0 && (rf.size+int64(len(p)) > rf.maxBytes || rf.now().Sub(rf.openedAt) > 24*time.Hour) {
		if err := rf.rotateLocked(); err != nil {
			return 0, err
		}
	}
	n, err := rf.file.Write(p)
	rf.size += int64(n)
	return n, err
}

func (rf *RotatingFile) rotateLocked() error {
	if err := rf.file.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	rotated := fmt.Sprintf("%s.%s", rf.path, rf.now().Format("20060102-150405.000"))
	if err := os.Rename(rf.path, rotated); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename log file: %w", err)
	}
	rf.wg.Add(1)
	go func() {
		defer rf.wg.Done()
		rf.bg.Lock()
		defer rf.bg.Unlock()
		if err := gzipFile(rotated); err != nil {
			fmt.Fprintf(os.Stderr, "compress %s: %v\n", rotated, err)
		}
		prune(rf.path, rf.keep)
	}()
	return rf.open()
}

func gzipFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		zw.Close()
		out.Close()
		os.Remove(path + ".gz")
		return err
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

// prune keeps the newest keep compressed rotations of base.
func prune(base string, keep int) {
	matches, err := filepath.Glob(base + ".*.gz")
	if err != nil || len(matches) <= keep {
		return
	}
	// Rotation suffixes are timestamps, so lexical order is age order.
	sort.Strings(matches)
	for _, path := range matches[:len(matches)-keep] {
		os.Remove(path)
	}
}

// Close flushes pending compression and closes the current file.
func (rf *RotatingFile) Close() error {
	rf.mu.Lock()
	f := rf.file
	rf.file = nil
	rf.mu.Unlock()
	rf.wg.Wait()
	if f == nil {
		return nil
	}
	return f.Close()
}
