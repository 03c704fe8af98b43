package app

import "sync"

// TradeLocker hands out one mutex per trade ID.
type TradeLocker struct {
	mu    sync.Mutex
	locks map[int64]*tradeLock
}

type tradeLock struct {
	mu   sync.Mutex
	refs int
}

// NewTradeLocker creates an empty locker.
func NewTradeLocker() *TradeLocker {
	return &TradeLocker{locks: make(map[int64]*tradeLock)}
}

// Lock blocks until the trade's lock is held and returns its release func.
// Entries are dropped once no goroutine holds or waits for them.
func (l *TradeLocker) Lock(tradeID int64) func() {
	l.mu.Lock()
	tl, ok := l.locks[tradeID]
	if !ok {
		tl = &tradeLock{}
		l.locks[tradeID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()
	return func() {
		tl.mu.Unlock()
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, tradeID)
		}
		l.mu.Unlock()
	}
}

// Len returns the number of trades currently locked or awaited.
func (l *TradeLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
