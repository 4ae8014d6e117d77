package audio

import "sync/atomic"

const defaultQueueSize = 64

// FrameQueue hands encoded frames from the capture callback to the sender.
// When full, Offer evicts the oldest queued frame so the newest audio wins.
// Offer never blocks and takes no lock.
//
// There is one producer. Close must only be called once that producer has
// stopped calling Offer.
type FrameQueue struct {
	frames chan []byte

	closed  atomic.Bool
	dropped atomic.Int64
}

func NewFrameQueue(size int) *FrameQueue {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &FrameQueue{frames: make(chan []byte, size)}
}

// Offer enqueues frame and reports whether an older frame was evicted.
// Frames offered after Close are discarded.
func (q *FrameQueue) Offer(frame []byte) (evicted bool) {
	if len(frame) == 0 || q.closed.Load() {
		return false
	}

	for {
		select {
		case q.frames <- frame:
			return evicted
		default:
		}
		select {
		case <-q.frames:
			q.dropped.Add(1)
			evicted = true
		default:
		}
	}
}

// Frames is closed once the queue is closed and drained.
func (q *FrameQueue) Frames() <-chan []byte {
	return q.frames
}

// Dropped returns how many frames were evicted.
func (q *FrameQueue) Dropped() int64 {
	return q.dropped.Load()
}

func (q *FrameQueue) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.frames)
	}
}
