package database

import (
	"sync"
)

// DefaultFeedSize is the buffer size of subscription feeds if none is given.
const DefaultFeedSize = 100

// Subscription receives events of completed operations.
// Events are dropped if the feed is full.
type Subscription struct {
	Feed chan *Event

	subs     *subscriptions
	canceled bool
}

type subscriptions struct {
	all     []*Subscription
	allLock sync.RWMutex
	metrics *storeMetrics
}

// Subscribe returns a new subscription to all events of the store.
func (s *Store) Subscribe(feedSize int) *Subscription {
	if feedSize <= 0 {
		feedSize = DefaultFeedSize
	}

	sub := &Subscription{
		Feed: make(chan *Event, feedSize),
		subs: s.subs,
	}

	s.subs.allLock.Lock()
	defer s.subs.allLock.Unlock()

	s.subs.all = append(s.subs.all, sub)
	return sub
}

// Cancel cancels the subscription and closes the feed.
func (sub *Subscription) Cancel() {
	subs := sub.subs
	subs.allLock.Lock()
	defer subs.allLock.Unlock()

	if sub.canceled {
		return
	}
	sub.canceled = true

	for i, other := range subs.all {
		if other == sub {
			subs.all = append(subs.all[:i], subs.all[i+1:]...)
			break
		}
	}
	close(sub.Feed)
}

func (subs *subscriptions) publish(e *Event) {
	subs.allLock.RLock()
	defer subs.allLock.RUnlock()

	for _, sub := range subs.all {
		select {
		case sub.Feed <- e:
		default:
			subs.metrics.droppedEvents.Inc()
		}
	}
}

func (subs *subscriptions) cancelAll() {
	subs.allLock.Lock()
	all := subs.all
	subs.all = nil
	for _, sub := range all {
		sub.canceled = true
		close(sub.Feed)
	}
	subs.allLock.Unlock()
}
