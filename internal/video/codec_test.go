package video

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNegotiate_FirstWorkingCodecWins(t *testing.T) {
	factory := &fakeFactory{okCodec: "XVID"}
	path := filepath.Join(t.TempDir(), "out.avi")

	w, codec, err := Negotiate(factory, []string{"mp4v", "XVID", "MJPG"}, path, 640, 480, 25)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if codec != "XVID" {
		t.Fatalf("codec: got %q, want XVID", codec)
	}
	// Negotiation stops at the first success.
	if len(factory.tried) != 2 || factory.tried[0] != "mp4v" || factory.tried[1] != "XVID" {
		t.Fatalf("tried: %v", factory.tried)
	}
}

func TestNegotiate_AllFail(t *testing.T) {
	factory := &fakeFactory{}
	path := filepath.Join(t.TempDir(), "out.mp4")

	_, _, err := Negotiate(factory, []string{"AAAA", "BBBB", "CCCC"}, path, 640, 480, 25)
	if !errors.Is(err, ErrNoCodecAvailable) {
		t.Fatalf("expected ErrNoCodecAvailable, got %v", err)
	}
	if len(factory.tried) != 3 {
		t.Fatalf("tried: %v", factory.tried)
	}
	// No partial file left behind.
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatal("partial output was not deleted")
	}
}

func TestNegotiate_EmptyPreferenceUsesDefaults(t *testing.T) {
	factory := &fakeFactory{okCodec: "mp4v"}
	path := filepath.Join(t.TempDir(), "out.mp4")

	w, codec, err := Negotiate(factory, nil, path, 320, 240, 30)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if codec != DefaultCodecs[0] {
		t.Fatalf("codec: got %q, want %q", codec, DefaultCodecs[0])
	}
}
