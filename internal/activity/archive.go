package activity

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Kind distinguishes archived inputs from outputs
type Kind string

const (
	KindInput  Kind = "inputs"
	KindOutput Kind = "outputs"
)

// Class is the media class subdirectory
type Class string

const (
	ClassImage  Class = "images"
	ClassVideo  Class = "videos"
	ClassReport Class = "reports"
)

// Archiver copies processed files into a fixed directory tree:
//
//	<base>/inputs/{images,videos}
//	<base>/outputs/{images,videos,reports}
//
// with the log database at the tree root. Stored names are prefixed with
// a timestamp so repeated uploads of the same file never collide.
type Archiver struct {
	base string
}

// DefaultBaseDir is the default archive root
const DefaultBaseDir = "information_record"

// NewArchiver creates the archive tree under base (DefaultBaseDir when empty)
func NewArchiver(base string) (*Archiver, error) {
	if base == "" {
		base = DefaultBaseDir
	}
	dirs := []string{
		filepath.Join(base, string(KindInput), string(ClassImage)),
		filepath.Join(base, string(KindInput), string(ClassVideo)),
		filepath.Join(base, string(KindOutput), string(ClassImage)),
		filepath.Join(base, string(KindOutput), string(ClassVideo)),
		filepath.Join(base, string(KindOutput), string(ClassReport)),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create archive dir %s: %w", d, err)
		}
	}
	return &Archiver{base: base}, nil
}

// Base returns the archive root directory
func (a *Archiver) Base() string { return a.base }

// LogPath returns the path of the activity log database inside the tree
func (a *Archiver) LogPath() string {
	return filepath.Join(a.base, "activity_log.db")
}

// Archive copies srcPath into the tree under a timestamped name and
// returns the stored path. The source file is left untouched.
func (a *Archiver) Archive(kind Kind, class Class, srcPath, originalName string) (string, error) {
	if originalName == "" {
		originalName = filepath.Base(srcPath)
	}
	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for archiving: %w", srcPath, err)
	}
	defer src.Close()

	out, err := a.createStored(kind, class, originalName)
	if err != nil {
		return "", err
	}
	dst := out.Name()
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("failed to archive %s: %w", srcPath, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", err
	}
	return dst, nil
}

// ArchiveBytes stores in-memory content (uploads, generated reports)
// under a timestamped name and returns the stored path.
func (a *Archiver) ArchiveBytes(kind Kind, class Class, data []byte, originalName string) (string, error) {
	out, err := a.createStored(kind, class, originalName)
	if err != nil {
		return "", err
	}
	dst := out.Name()
	if _, err := out.Write(data); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("failed to archive %s: %w", originalName, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", err
	}
	return dst, nil
}

// createStored exclusively creates the destination file. The timestamp
// prefix has second granularity, so a counter is inserted when another
// archive of the same name landed within the same second.
func (a *Archiver) createStored(kind Kind, class Class, originalName string) (*os.File, error) {
	stamp := time.Now().Format("20060102_150405")
	base := filepath.Base(originalName)
	dir := filepath.Join(a.base, string(kind), string(class))
	for i := 0; ; i++ {
		name := fmt.Sprintf("%s_%s", stamp, base)
		if i > 0 {
			name = fmt.Sprintf("%s_%d_%s", stamp, i, base)
		}
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create archive file: %w", err)
		}
		return f, nil
	}
}
