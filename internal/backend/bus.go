package backend

import "sync"

// bus fans auth changes out to every listener registered for a device.
// Publish calls listeners synchronously and without holding the lock, so a
// listener may subscribe or unsubscribe from inside its callback.
type bus struct {
	mu     sync.Mutex
	nextID uint64
	topics map[string]map[uint64]func(AuthChange)
}

func newBus() *bus {
	return &bus{topics: make(map[string]map[uint64]func(AuthChange))}
}

func (b *bus) subscribe(device string, fn func(AuthChange)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	subs, ok := b.topics[device]
	if !ok {
		subs = make(map[uint64]func(AuthChange))
		b.topics[device] = subs
	}
	subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.topics[device], id)
			if len(b.topics[device]) == 0 {
				delete(b.topics, device)
			}
		})
	}
}

func (b *bus) publish(device string, change AuthChange) {
	b.mu.Lock()
	fns := make([]func(AuthChange), 0, len(b.topics[device]))
	for _, fn := range b.topics[device] {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

func (b *bus) listeners(device string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[device])
}
