package media

import (
	"sync"
	"time"
)

// FrameQueue is a bounded ring of converted frames. A full queue blocks the
// producer, which is what throttles the decode worker to playback speed.
type FrameQueue struct {
	frames []*Frame
	max    int

	head, tail, count int

	mutex    sync.Mutex
	cond     *sync.Cond
	serial   int
	aborted  bool
	finished bool
}

func NewFrameQueue(max int) *FrameQueue {
	if max < 1 {
		max = 1
	}

	fq := &FrameQueue{
		frames: make([]*Frame, max),
		max:    max,
	}

	fq.cond = sync.NewCond(&fq.mutex)
	return fq
}

// Push appends f, waiting for room while the queue is full. Frames from an
// older serial are released and dropped. On ErrAborted the caller still owns f.
func (fq *FrameQueue) Push(f *Frame) error {
	fq.mutex.Lock()
	defer fq.mutex.Unlock()

	for fq.count >= fq.max && !fq.aborted {
		fq.cond.Wait()
	}

	if fq.aborted {
		return ErrAborted
	}

	if f.Serial < fq.serial {
		f.Release()
		return nil
	}

	fq.frames[fq.tail] = f
	fq.tail = (fq.tail + 1) % fq.max
	fq.count += 1

	fq.cond.Broadcast()
	return nil
}

// PopTimeout removes the head frame, waiting at most d for one to arrive. It
// returns (nil, nil) on timeout, ErrAborted once aborted and ErrEndOfStream
// when the producer finished and nothing is left.
func (fq *FrameQueue) PopTimeout(d time.Duration) (*Frame, error) {
	deadline := time.Now().Add(d)
	timer := time.AfterFunc(d, func() {
		fq.mutex.Lock()
		fq.cond.Broadcast()
		fq.mutex.Unlock()
	})
	defer timer.Stop()

	fq.mutex.Lock()
	defer fq.mutex.Unlock()

	for {
		if fq.aborted {
			return nil, ErrAborted
		}

		if f := fq.popLocked(); f != nil {
			return f, nil
		}

		if fq.finished {
			return nil, ErrEndOfStream
		}

		if !time.Now().Before(deadline) {
			return nil, nil
		}
		fq.cond.Wait()
	}
}

func (fq *FrameQueue) popLocked() *Frame {
	for fq.count > 0 {
		f := fq.frames[fq.head]
		fq.frames[fq.head] = nil

		fq.head = (fq.head + 1) % fq.max
		fq.count -= 1

		fq.cond.Broadcast()

		if f.Serial < fq.serial {
			f.Release()
			continue
		}
		return f
	}
	return nil
}

// Peek returns the head frame's timestamp and serial without removing it.
func (fq *FrameQueue) Peek() (pts float64, serial int, ok bool) {
	fq.mutex.Lock()
	defer fq.mutex.Unlock()

	if fq.count == 0 {
		return NoPTS, 0, false
	}

	f := fq.frames[fq.head]
	return f.PTS, f.Serial, true
}

// Finish marks that no more frames will be pushed for the current serial.
func (fq *FrameQueue) Finish() {
	fq.mutex.Lock()
	defer fq.mutex.Unlock()

	fq.finished = true
	fq.cond.Broadcast()
}

// Flush releases every queued frame and starts a new serial.
func (fq *FrameQueue) Flush() {
	fq.mutex.Lock()
	defer fq.mutex.Unlock()

	fq.dropLocked()
	fq.serial++
	fq.finished = false
	fq.cond.Broadcast()
}

func (fq *FrameQueue) dropLocked() {
	for fq.count > 0 {
		fq.frames[fq.head].Release()
		fq.frames[fq.head] = nil
		fq.head = (fq.head + 1) % fq.max
		fq.count -= 1
	}
	fq.head, fq.tail = 0, 0
}

// Start re-enables an aborted queue under a new serial.
func (fq *FrameQueue) Start() {
	fq.mutex.Lock()
	defer fq.mutex.Unlock()

	fq.aborted = false
	fq.finished = false
	fq.serial++
}

// Abort wakes blocked producers and consumers. Safe to call more than once.
func (fq *FrameQueue) Abort() {
	fq.mutex.Lock()
	defer fq.mutex.Unlock()

	fq.aborted = true
	fq.cond.Broadcast()
}

func (fq *FrameQueue) Aborted() bool {
	fq.mutex.Lock()
	defer fq.mutex.Unlock()
	return fq.aborted
}

func (fq *FrameQueue) Len() int {
	fq.mutex.Lock()
	defer fq.mutex.Unlock()
	return fq.count
}

func (fq *FrameQueue) Cap() int {
	return fq.max
}

func (fq *FrameQueue) Serial() int {
	fq.mutex.Lock()
	defer fq.mutex.Unlock()
	return fq.serial
}
