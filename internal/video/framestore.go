package video

// FrameStore is a bounded, append-only buffer of retained frame pairs.
//
// Retention is a greedy online policy: a frame with detections is accepted
// while there is room and never reconsidered once rejected. There is no
// look-ahead and no replacement of an already-retained frame by a later,
// higher-confidence one. Memory stays bounded regardless of video length.
type FrameStore struct {
	cap    int
	frames []FrameRecord
}

// DefaultRetainCap is the retention cap used when none is configured
// (the UI comparison grid shows 12 pairs; PDF reports use 20).
const DefaultRetainCap = 12

// NewFrameStore creates a store retaining at most cap frames
func NewFrameStore(cap int) *FrameStore {
	if cap <= 0 {
		cap = DefaultRetainCap
	}
	return &FrameStore{cap: cap}
}

// Offer proposes a frame for retention. It is accepted only if it has
// detections, the store is below its cap, and its index is greater than
// the last retained index. Returns whether the frame was retained.
func (fs *FrameStore) Offer(rec FrameRecord) bool {
	if !rec.HasDetection() {
		return false
	}
	if len(fs.frames) >= fs.cap {
		return false
	}
	if n := len(fs.frames); n > 0 && rec.Index <= fs.frames[n-1].Index {
		return false
	}
	fs.frames = append(fs.frames, rec)
	return true
}

// Retained returns the retained records in ascending frame index order
func (fs *FrameStore) Retained() []FrameRecord {
	out := make([]FrameRecord, len(fs.frames))
	copy(out, fs.frames)
	return out
}

// Len returns the number of retained frames
func (fs *FrameStore) Len() int { return len(fs.frames) }

// Cap returns the retention cap
func (fs *FrameStore) Cap() int { return fs.cap }
