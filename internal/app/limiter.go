package app

import (
	"container/list"
	"context"
	"sync"
)

// Limiter borne le nombre de téléchargements simultanés d'un run.
// Les slots sont attribués dans l'ordre d'arrivée; le plafond se règle à
// chaud et un Acquire annulé ne garde jamais de slot.
type Limiter struct {
	mu       sync.Mutex
	limit    int
	inFlight int
	waiters  list.List // de chan struct{}, fermé à l'attribution
}

func NewLimiter(limit int) *Limiter {
	return &Limiter{limit: max(limit, 1)}
}

func (l *Limiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// InFlight renvoie le nombre de slots tenus, exposé par /health.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

func (l *Limiter) SetLimit(limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = max(limit, 1)
	l.grantLocked()
}

func (l *Limiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	if l.waiters.Len() == 0 && l.inFlight < l.limit {
		l.inFlight++
		l.mu.Unlock()
		return nil
	}
	granted := make(chan struct{})
	elem := l.waiters.PushBack(granted)
	l.mu.Unlock()

	select {
	case <-granted:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		defer l.mu.Unlock()
		select {
		case <-granted:
			// Attribué pendant l'annulation: on rend le slot au suivant.
			l.inFlight--
			l.grantLocked()
		default:
			l.waiters.Remove(elem)
		}
		return ctx.Err()
	}
}

func (l *Limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight > 0 {
		l.inFlight--
	}
	l.grantLocked()
}

func (l *Limiter) grantLocked() {
	for l.inFlight < l.limit && l.waiters.Len() > 0 {
		ch := l.waiters.Remove(l.waiters.Front()).(chan struct{})
		l.inFlight++
		close(ch)
	}
}
