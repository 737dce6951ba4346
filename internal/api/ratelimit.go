// Per-player limit on assignment draws. The chat front end sits behind a
// shared egress address, so the caller identity that matters is the player
// id, not the peer IP: one player hammering reroll must not lock the whole
// community out.
package api

import (
	"sync"
	"time"
)

// AssignLimiter caps how many draws a single player may request inside a
// sliding window. Safe for concurrent use.
type AssignLimiter struct {
	mu       sync.Mutex
	draws    map[string][]time.Time
	maxDraws int
	window   time.Duration
}

// NewAssignLimiter allows maxDraws per player per window.
func NewAssignLimiter(maxDraws int, window time.Duration) *AssignLimiter {
	l := &AssignLimiter{
		draws:    make(map[string][]time.Time),
		maxDraws: maxDraws,
		window:   window,
	}
	go l.sweep()
	return l
}

// Allow records a draw attempt for the player and reports whether it falls
// inside the limit. Rejected attempts are not counted against the player.
func (l *AssignLimiter) Allow(playerID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	recent := l.recentLocked(playerID, now)
	if len(recent) >= l.maxDraws {
		l.draws[playerID] = recent
		return false
	}
	l.draws[playerID] = append(recent, now)
	return true
}

// RetryAfter returns how long until the player's oldest counted draw ages
// out of the window, zero if the player is not currently limited.
func (l *AssignLimiter) RetryAfter(playerID string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.recentLocked(playerID, time.Now())
	if len(recent) < l.maxDraws {
		return 0
	}
	remaining := l.window - time.Since(recent[0])
	if remaining < 0 {
		return 0
	}
	return remaining
}

// recentLocked returns the player's draws still inside the window, oldest
// first.
func (l *AssignLimiter) recentLocked(playerID string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	stamps := l.draws[playerID]
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}

// sweep periodically drops players whose draws have all aged out, so the
// map does not grow with every player ever seen.
func (l *AssignLimiter) sweep() {
	for {
		time.Sleep(time.Hour)

		l.mu.Lock()
		cutoff := time.Now().Add(-l.window)
		for id, stamps := range l.draws {
			if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
				delete(l.draws, id)
			}
		}
		l.mu.Unlock()
	}
}
