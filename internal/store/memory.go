package store

import (
	"sync"
	"time"

	"github.com/kpanalytix/kpa-assistant/internal"
)

// History is the unbounded display log of one conversation.
type History struct {
	mu       sync.Mutex
	messages []internal.Message
}

func NewHistory() *History {
	return &History{messages: make([]internal.Message, 0, 64)}
}

func (s *History) All() []internal.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]internal.Message, len(s.messages))
	copy(cp, s.messages)
	return cp
}

func (s *History) Append(msg internal.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	s.messages = append(s.messages, msg)
}

func (s *History) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *History) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = s.messages[:0]
}

// SeedAssistantHello appends an assistant greeting with no action.
func SeedAssistantHello(s *History, text string) internal.Message {
	msg := internal.Message{
		Role:      internal.RoleAssistant,
		Content:   text,
		CreatedAt: time.Now(),
	}
	s.Append(msg)
	return msg
}

// ContextBuffer holds the model-facing context. It keeps at most limit
// messages and drops the oldest first.
type ContextBuffer struct {
	mu       sync.Mutex
	limit    int
	messages []internal.Message
}

func NewContextBuffer(limit int) *ContextBuffer {
	if limit <= 0 {
		limit = 1
	}
	return &ContextBuffer{limit: limit, messages: make([]internal.Message, 0, limit+1)}
}

func (b *ContextBuffer) Append(msg internal.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
	if over := len(b.messages) - b.limit; over > 0 {
		// shift down instead of reslicing so the backing array does not grow forever
		n := copy(b.messages, b.messages[over:])
		b.messages = b.messages[:n]
	}
}

func (b *ContextBuffer) Messages() []internal.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]internal.Message, len(b.messages))
	copy(cp, b.messages)
	return cp
}

func (b *ContextBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

func (b *ContextBuffer) Limit() int { return b.limit }

func (b *ContextBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = b.messages[:0]
}
