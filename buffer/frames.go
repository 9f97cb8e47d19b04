package buffer

import (
	"image"

	"github.com/jtejido/fingerlive/frame"
)

// FrameBuffer is the sliding window of recent frames feeding the temporal
// signals. Color frames and their grayscale derivatives are kept in parallel
// rings of equal capacity.
type FrameBuffer struct {
	frames *Ring[*frame.Frame]
	grays  *Ring[*image.Gray]
}

func NewFrameBuffer(capacity int) *FrameBuffer {
	return &FrameBuffer{
		frames: NewRing[*frame.Frame](capacity),
		grays:  NewRing[*image.Gray](capacity),
	}
}

// Push appends f and its grayscale image, evicting the oldest entry when full.
func (b *FrameBuffer) Push(f *frame.Frame) {
	b.frames.Push(f)
	b.grays.Push(f.Gray)
}

func (b *FrameBuffer) Len() int { return b.frames.Len() }

func (b *FrameBuffer) Cap() int { return b.frames.Cap() }

// Grays returns the buffered grayscale frames, oldest first.
func (b *FrameBuffer) Grays() []*image.Gray { return b.grays.Values() }

// Latest returns the newest frame, or nil if the buffer is empty.
func (b *FrameBuffer) Latest() *frame.Frame {
	f, _ := b.frames.Newest()
	return f
}

func (b *FrameBuffer) Clear() {
	b.frames.Clear()
	b.grays.Clear()
}
