package activity

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestArchiver_CreatesTree(t *testing.T) {
	base := filepath.Join(t.TempDir(), "information_record")
	_, err := NewArchiver(base)
	if err != nil {
		t.Fatal(err)
	}

	for _, d := range []string{
		"inputs/images", "inputs/videos",
		"outputs/images", "outputs/videos", "outputs/reports",
	} {
		info, err := os.Stat(filepath.Join(base, d))
		if err != nil || !info.IsDir() {
			t.Fatalf("missing archive dir %s: %v", d, err)
		}
	}
}

func TestArchiver_ArchiveCopiesFile(t *testing.T) {
	base := filepath.Join(t.TempDir(), "rec")
	a, err := NewArchiver(base)
	if err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(t.TempDir(), "slick.mp4")
	if err := os.WriteFile(src, []byte("video-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	stored, err := a.Archive(KindInput, ClassVideo, src, "slick.mp4")
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(stored, filepath.Join(base, "inputs", "videos")) {
		t.Fatalf("stored outside expected subtree: %s", stored)
	}
	if !strings.HasSuffix(stored, "_slick.mp4") {
		t.Fatalf("stored name missing timestamp prefix: %s", stored)
	}

	data, err := os.ReadFile(stored)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "video-bytes" {
		t.Fatalf("content mismatch: %q", data)
	}

	// Source untouched.
	if _, err := os.Stat(src); err != nil {
		t.Fatal("source file was removed")
	}
}

func TestArchiver_ArchiveBytes(t *testing.T) {
	a, err := NewArchiver(filepath.Join(t.TempDir(), "rec"))
	if err != nil {
		t.Fatal(err)
	}

	stored, err := a.ArchiveBytes(KindOutput, ClassReport, []byte("pdf-bytes"), "report.pdf")
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(stored)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "pdf-bytes" {
		t.Fatalf("content mismatch: %q", data)
	}
}

func TestArchiver_SameNameSameSecondDoesNotOverwrite(t *testing.T) {
	a, err := NewArchiver(filepath.Join(t.TempDir(), "rec"))
	if err != nil {
		t.Fatal(err)
	}

	// Both land within one timestamp tick; the second must get a
	// distinct name instead of truncating the first.
	first, err := a.ArchiveBytes(KindOutput, ClassReport, []byte("first"), "report.txt")
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.ArchiveBytes(KindOutput, ClassReport, []byte("second"), "report.txt")
	if err != nil {
		t.Fatal(err)
	}

	if first == second {
		t.Fatalf("stored paths collide: %s", first)
	}
	data, err := os.ReadFile(first)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "first" {
		t.Fatalf("first archive overwritten: %q", data)
	}
	data, err = os.ReadFile(second)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Fatalf("second archive content: %q", data)
	}
}

func TestArchiver_ArchiveMissingSource(t *testing.T) {
	a, err := NewArchiver(filepath.Join(t.TempDir(), "rec"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Archive(KindInput, ClassImage, "/does/not/exist.jpg", ""); err == nil {
		t.Fatal("expected error for missing source")
	}
}
