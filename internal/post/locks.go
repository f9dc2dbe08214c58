package post

import "sync"

// UserLocks serializes work per user. Entries are reference counted so the map
// does not grow with every user ever seen.
type UserLocks struct {
	mu sync.Mutex
	m  map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func NewUserLocks() *UserLocks {
	return &UserLocks{m: map[int64]*userLock{}}
}

// Lock blocks until the user's lock is held and returns the unlock func.
func (l *UserLocks) Lock(user int64) (unlock func()) {
	l.mu.Lock()
	if l.m == nil {
		l.m = map[int64]*userLock{}
	}
	ul := l.m[user]
	if ul == nil {
		ul = &userLock{}
		l.m[user] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			ul.mu.Unlock()
			l.mu.Lock()
			ul.refs--
			if ul.refs == 0 {
				delete(l.m, user)
			}
			l.mu.Unlock()
		})
	}
}

// Do runs fn while holding the user's lock.
func (l *UserLocks) Do(user int64, fn func()) {
	unlock := l.Lock(user)
	defer unlock()
	fn()
}

func (l *UserLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
