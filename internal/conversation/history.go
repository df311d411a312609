package conversation

import "time"

const MaxHistory = 10

type Message struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// history is a fixed-capacity ring buffer that keeps the newest entries.
type history struct {
	buf   [MaxHistory]Message
	start int
	size  int
}

func (h *history) add(m Message) {
	if h.size < MaxHistory {
		h.buf[(h.start+h.size)%MaxHistory] = m
		h.size++
		return
	}
	h.buf[h.start] = m
	h.start = (h.start + 1) % MaxHistory
}

// items returns the stored messages oldest first.
func (h *history) items() []Message {
	out := make([]Message, 0, h.size)
	for i := 0; i < h.size; i++ {
		out = append(out, h.buf[(h.start+i)%MaxHistory])
	}
	return out
}

func (h *history) lastByRole(role string) (Message, bool) {
	for i := h.size - 1; i >= 0; i-- {
		m := h.buf[(h.start+i)%MaxHistory]
		if m.Role == role {
			return m, true
		}
	}
	return Message{}, false
}

func (h *history) reset() {
	*h = history{}
}
