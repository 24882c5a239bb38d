package compositor

// handlerList is an ordered collection of handlers removable by identity.
// Iteration works on a snapshot, and entries removed while a snapshot is
// being walked are skipped from that point on.
type handlerList[T comparable] struct {
	entries []*handlerEntry[T]
}

type handlerEntry[T comparable] struct {
	h       T
	removed bool
}

func (l *handlerList[T]) add(h T) {
	for _, e := range l.entries {
		if e.h == h {
			return
		}
	}
	l.entries = append(l.entries, &handlerEntry[T]{h: h})
}

func (l *handlerList[T]) remove(h T) bool {
	for i, e := range l.entries {
		if e.h != h {
			continue
		}
		e.removed = true
		next := make([]*handlerEntry[T], 0, len(l.entries)-1)
		next = append(next, l.entries[:i]...)
		next = append(next, l.entries[i+1:]...)
		l.entries = next
		return true
	}
	return false
}

func (l *handlerList[T]) each(fn func(T)) {
	snapshot := l.entries
	for _, e := range snapshot {
		if e.removed {
			continue
		}
		fn(e.h)
	}
}

func (l *handlerList[T]) len() int {
	return len(l.entries)
}
