// Package lockmap provides a lock for every block number of an image.
//
// Locks are created on demand and dropped when nobody holds or waits for
// them. Block numbers are spread over a fixed set of shards; acquiring a
// lock only synchronizes with callers whose block falls in the same shard.
package lockmap

import (
	"sync"

	"github.com/mit-pdos/vsfs-journal/common"
)

type blockLock struct {
	held    bool
	waiters uint64
	cond    *sync.Cond
}

type shard struct {
	mu    sync.Mutex
	locks map[common.Bnum]*blockLock
}

func (s *shard) acquire(bn common.Bnum) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[bn]
	if !ok {
		l = &blockLock{cond: sync.NewCond(&s.mu)}
		s.locks[bn] = l
	}
	for l.held {
		l.waiters++
		l.cond.Wait()
		l.waiters--
	}
	l.held = true
}

func (s *shard) release(bn common.Bnum) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[bn]
	if !ok || !l.held {
		panic("lockmap: release of unheld lock")
	}
	l.held = false
	if l.waiters > 0 {
		l.cond.Signal()
	} else {
		delete(s.locks, bn)
	}
}

const NSHARD uint64 = 43

type LockMap struct {
	shards [NSHARD]*shard
}

func MkLockMap() *LockMap {
	m := &LockMap{}
	for i := range m.shards {
		m.shards[i] = &shard{locks: make(map[common.Bnum]*blockLock)}
	}
	return m
}

func (m *LockMap) Acquire(bn common.Bnum) {
	m.shards[bn%NSHARD].acquire(bn)
}

func (m *LockMap) Release(bn common.Bnum) {
	m.shards[bn%NSHARD].release(bn)
}
