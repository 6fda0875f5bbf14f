package media

import (
	"container/list"
	"sync"
)

type queuedPacket struct {
	pkt    *Packet
	serial int
}

// PacketQueue is an unbounded FIFO of compressed packets between the
// container reader and a stream's decoder.
type PacketQueue struct {
	mutex sync.Mutex
	cond  *sync.Cond

	packets *list.List
	size    int
	serial  int
	aborted bool
}

func NewPacketQueue() *PacketQueue {
	pq := &PacketQueue{
		packets: list.New(),
	}
	pq.cond = sync.NewCond(&pq.mutex)
	return pq
}

// Push appends pkt stamped with the current serial. On ErrAborted the caller
// still owns pkt.
func (pq *PacketQueue) Push(pkt *Packet) error {
	pq.mutex.Lock()
	defer pq.mutex.Unlock()

	if pq.aborted {
		return ErrAborted
	}

	pq.packets.PushBack(queuedPacket{pkt: pkt, serial: pq.serial})
	pq.size += pkt.Size()

	pq.cond.Signal()
	return nil
}

// Pop removes the head packet. With block set it waits until a packet arrives
// or the queue is aborted; otherwise ok is false when the queue is empty.
func (pq *PacketQueue) Pop(block bool) (pkt *Packet, serial int, ok bool, err error) {
	pq.mutex.Lock()
	defer pq.mutex.Unlock()

	for {
		if pq.aborted {
			return nil, 0, false, ErrAborted
		}

		if e := pq.packets.Front(); e != nil {
			qp := pq.packets.Remove(e).(queuedPacket)
			pq.size -= qp.pkt.Size()
			if qp.serial != pq.serial {
				continue
			}
			return qp.pkt, qp.serial, true, nil
		}

		if !block {
			return nil, 0, false, nil
		}
		pq.cond.Wait()
	}
}

// Flush drops every queued packet and starts a new serial.
func (pq *PacketQueue) Flush() {
	pq.mutex.Lock()
	defer pq.mutex.Unlock()

	pq.packets.Init()
	pq.size = 0
	pq.serial++
}

// Start re-enables an aborted queue under a new serial.
func (pq *PacketQueue) Start() {
	pq.mutex.Lock()
	defer pq.mutex.Unlock()

	pq.aborted = false
	pq.serial++
}

// Abort wakes every waiter. Safe to call more than once.
func (pq *PacketQueue) Abort() {
	pq.mutex.Lock()
	defer pq.mutex.Unlock()

	pq.aborted = true
	pq.cond.Broadcast()
}

func (pq *PacketQueue) Len() int {
	pq.mutex.Lock()
	defer pq.mutex.Unlock()
	return pq.packets.Len()
}

// Size returns the number of payload bytes queued.
func (pq *PacketQueue) Size() int {
	pq.mutex.Lock()
	defer pq.mutex.Unlock()
	return pq.size
}

func (pq *PacketQueue) Serial() int {
	pq.mutex.Lock()
	defer pq.mutex.Unlock()
	return pq.serial
}
