package orchestrator

import "sync"

// plateLocks is a keyed mutex arena. Events for the same plate serialize on
// one lock while unrelated plates proceed in parallel; entries are dropped
// as soon as the last holder releases, so the table never grows beyond the
// number of in-flight plates.
type plateLocks struct {
	mu    sync.Mutex
	locks map[string]*plateLock
}

type plateLock struct {
	sync.Mutex
	refs int
}

func newPlateLocks() *plateLocks {
	return &plateLocks{locks: make(map[string]*plateLock)}
}

func (p *plateLocks) acquire(plate string) *plateLock {
	p.mu.Lock()
	l, ok := p.locks[plate]
	if !ok {
		l = &plateLock{}
		p.locks[plate] = l
	}
	l.refs++
	p.mu.Unlock()

	l.Lock()
	return l
}

func (p *plateLocks) release(plate string, l *plateLock) {
	l.Unlock()

	p.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(p.locks, plate)
	}
	p.mu.Unlock()
}
