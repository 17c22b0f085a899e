// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credstore

import "sync"

// TokenState is the observable token value after a write.
type TokenState struct {
	Token   string
	Present bool
}

// Subscription delivers [TokenState] values in write order. The first
// value is the state at the time of [Store.Subscribe]. Values coalesce:
// a subscriber that falls behind skips intermediate states but always
// receives the latest one.
type Subscription struct {
	store   *Store
	updates chan TokenState
	once    sync.Once
}

// Subscribe registers a new subscriber. Any number of subscriptions may
// be open at once, and a closed one can be replaced by subscribing
// again.
func (s *Store) Subscribe() *Subscription {
	subscription := &Subscription{
		store:   s,
		updates: make(chan TokenState, 1),
	}

	// Holding the write mutex keeps a concurrent write from publishing
	// between reading the current state and registering.
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	if s.closed.Load() {
		close(subscription.updates)
		subscription.once.Do(func() {})
		return subscription
	}

	token, present := s.LoadToken()
	subscription.updates <- TokenState{Token: token, Present: present}

	s.subscribersMutex.Lock()
	s.subscribers[subscription] = struct{}{}
	s.subscribersMutex.Unlock()

	return subscription
}

// Updates returns the channel of token states. It is closed by
// [Subscription.Close] or [Store.Close].
func (subscription *Subscription) Updates() <-chan TokenState {
	return subscription.updates
}

// Close stops delivery and closes the updates channel. Idempotent.
func (subscription *Subscription) Close() {
	subscription.once.Do(func() {
		store := subscription.store
		store.subscribersMutex.Lock()
		defer store.subscribersMutex.Unlock()
		if _, registered := store.subscribers[subscription]; registered {
			delete(store.subscribers, subscription)
			close(subscription.updates)
		}
	})
}

// publish replaces each subscriber's pending value with state. The
// caller holds writeMutex, so this is the only sender and the channel
// always has room after the drain.
func (s *Store) publish(state TokenState) {
	s.subscribersMutex.Lock()
	defer s.subscribersMutex.Unlock()
	for subscription := range s.subscribers {
		select {
		case subscription.updates <- state:
		default:
			select {
			case <-subscription.updates:
			default:
			}
			subscription.updates <- state
		}
	}
}
