package video

import (
	"fmt"
	"log"
	"os"
)

// DefaultCodecs is the default encoder preference order. Broad
// compatibility first, specialized codecs later; encoder availability
// differs per OS codec package, so hardcoding a single fourcc is a
// reliability bug this ordering exists to avoid.
var DefaultCodecs = []string{"mp4v", "XVID", "MJPG", "X264"}

// Negotiate opens the first codec from prefs that successfully
// initializes a writer for the target geometry. It returns the writer and
// the codec identifier that worked. If every candidate fails it removes
// any partially created file and returns ErrNoCodecAvailable.
func Negotiate(factory WriterFactory, prefs []string, path string, width, height int, fps float64) (FrameWriter, string, error) {
	if len(prefs) == 0 {
		prefs = DefaultCodecs
	}

	for _, codec := range prefs {
		w, err := factory.Open(codec, path, width, height, fps)
		if err != nil {
			log.Printf("[Codec] %s failed to initialize: %v", codec, err)
			continue
		}
		log.Printf("[Codec] Using %s for %dx%d @ %.1f fps", codec, width, height, fps)
		return w, codec, nil
	}

	// A failed open attempt may still have created the file.
	os.Remove(path)
	return nil, "", fmt.Errorf("%w (tried %v)", ErrNoCodecAvailable, prefs)
}
