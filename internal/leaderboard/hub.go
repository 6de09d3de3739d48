package leaderboard

import "sync"

const subscriberBuffer = 4

// Hub fans board updates out to live subscribers of an exam.
type Hub struct {
	mu   sync.RWMutex
	subs map[int64]map[chan *Board]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int64]map[chan *Board]struct{})}
}

// Subscribe registers for updates on examID. The returned cancel func must
// be called once; it closes the channel.
func (h *Hub) Subscribe(examID int64) (<-chan *Board, func()) {
	ch := make(chan *Board, subscriberBuffer)
	h.mu.Lock()
	set, ok := h.subs[examID]
	if !ok {
		set = make(map[chan *Board]struct{})
		h.subs[examID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[examID], ch)
			if len(h.subs[examID]) == 0 {
				delete(h.subs, examID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Subscribers(examID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[examID])
}

// Publish delivers board to every subscriber. Slow subscribers whose buffer
// is full skip this update.
func (h *Hub) Publish(board *Board) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[board.ExamID] {
		select {
		case ch <- board:
		default:
		}
	}
}
