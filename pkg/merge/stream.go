package merge

import (
	"github.com/sensorfusion/mergeplay/pkg/item"
	"github.com/sensorfusion/mergeplay/pkg/streamkey"
)

// SinkFunc receives exclusive ownership of one item per invocation. It is
// bound once, at AddStream time, and invoked synchronously by the dispatch
// engine in timestamp order.
type SinkFunc func(item.Timestamped)

// streamRecord is the per-stream FIFO queue plus its bound sink and
// lifecycle flag. Items are owned by the slice until popped into a sink
// call or dropped by the cold-path rule.
type streamRecord struct {
	key      streamkey.Key
	items    []item.Timestamped
	sink     SinkFunc
	finished bool
}

func newStreamRecord(key streamkey.Key, sink SinkFunc) *streamRecord {
	return &streamRecord{key: key, sink: sink}
}

func (s *streamRecord) pushBack(it item.Timestamped) {
	s.items = append(s.items, it)
}

func (s *streamRecord) peekFront() (item.Timestamped, bool) {
	if len(s.items) == 0 {
		return nil, false
	}
	return s.items[0], true
}

func (s *streamRecord) peekLast() (item.Timestamped, bool) {
	if len(s.items) == 0 {
		return nil, false
	}
	return s.items[len(s.items)-1], true
}

func (s *streamRecord) popFront() item.Timestamped {
	it := s.items[0]
	s.items[0] = nil // drop the reference so a long backlog doesn't pin old items
	s.items = s.items[1:]
	return it
}

func (s *streamRecord) len() int {
	return len(s.items)
}

func (s *streamRecord) less(other *streamRecord) bool {
	return s.key.Less(other.key)
}
