// Copyright 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package notify implements the notification bus of spec.md §4.H: a
// bounded replay buffer feeding fan-out to XPath-filtered subscriptions,
// each with its own bounded delivery window so one slow subscriber
// cannot stall the publisher or its peers. The registration/teardown
// discipline (register under a lock, tear down via a background
// goroutine watching for completion) is grounded on
// andaru-opr8/session.Manager's Accept/Terminate shape, generalized
// from session lifecycle to subscription lifecycle.
package notify

import (
	"sync"
	"time"

	log "github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/nmscore/netconfd/node"
	"github.com/nmscore/netconfd/xpath"
)

// Event is one published notification instance: an object-tree payload
// (spec.md §4.A), tagged with the module and notification name it was
// declared under and a bus-assigned monotonic sequence number.
type Event struct {
	Seq    uint64
	Time   time.Time
	Module string
	Name   string
	Tree   *node.Tree
	Root   node.Index
}

// Bus is a single process-wide notification bus. The zero Bus is not
// usable; use NewBus.
type Bus struct {
	mu       sync.Mutex
	seq      uint64
	capacity int
	replay   []Event
	subs     map[string]*Subscription
}

// NewBus returns a Bus whose replay buffer holds at most capacity
// events (spec.md §4.H "bounded replay buffer"); once full, the oldest
// event is dropped to admit a new one.
func NewBus(capacity int) *Bus {
	return &Bus{capacity: capacity, subs: map[string]*Subscription{}}
}

// Publish appends ev to the replay buffer (assigning its Seq and Time
// if unset) and fans it out to every live subscription whose filter
// matches, per spec.md §4.H. Delivery to each subscription is
// non-blocking: a subscription whose delivery window is full has this
// event dropped and its drop counter incremented rather than blocking
// the publisher (spec.md §4.H "backpressure-window drop").
func (b *Bus) Publish(ev Event) uint64 {
	b.mu.Lock()
	b.seq++
	ev.Seq = b.seq
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.replay = append(b.replay, ev)
	if b.capacity > 0 && len(b.replay) > b.capacity {
		b.replay = b.replay[len(b.replay)-b.capacity:]
	}
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if !s.matches(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			s.recordDrop()
			log.V(1).Infof("notify: dropped event %d for subscription %s (window full)", ev.Seq, s.ID)
		}
	}
	return ev.Seq
}

// SubscribeOptions configures Subscribe, mirroring RFC 5277/RFC 8639's
// create-subscription parameters.
type SubscribeOptions struct {
	// Filter is an XPath boolean expression evaluated against each
	// candidate event's payload tree; "" matches every event.
	Filter string
	// NSMap resolves prefixes used in Filter, per spec.md §4.C.
	NSMap map[string]string
	// StartTime, if non-nil, requests replay of buffered events at or
	// after this time before live delivery begins.
	StartTime *time.Time
	// StopTime, if non-nil, terminates the subscription at this time
	// (immediately, after replay, if already past).
	StopTime *time.Time
	// Window bounds the subscription's live-delivery channel; 0 uses a
	// reasonable default.
	Window int
}

const defaultWindow = 64

// Subscribe registers a new subscription, replays any buffered events
// matching opts.StartTime/Filter synchronously into the returned
// Subscription's channel, and — unless opts.StopTime is already in the
// past — registers it for ongoing live delivery. The caller must
// eventually call Unsubscribe (or Subscription.Close, equivalent) to
// release it.
func (b *Bus) Subscribe(opts SubscribeOptions) *Subscription {
	window := opts.Window
	if window <= 0 {
		window = defaultWindow
	}
	s := &Subscription{
		ID:     uuid.NewString(),
		bus:    b,
		filter: opts.Filter,
		nsmap:  opts.NSMap,
		ch:     make(chan Event, window),
	}

	b.mu.Lock()
	var toReplay []Event
	if opts.StartTime != nil {
		for _, ev := range b.replay {
			if !ev.Time.Before(*opts.StartTime) {
				toReplay = append(toReplay, ev)
			}
		}
	}
	stopPast := opts.StopTime != nil && !opts.StopTime.After(time.Now())
	if !stopPast {
		b.subs[s.ID] = s
	}
	b.mu.Unlock()

	for _, ev := range toReplay {
		if !s.matches(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			s.recordDrop()
			log.V(1).Infof("notify: dropped replay event %d for subscription %s (window full)", ev.Seq, s.ID)
		}
	}

	if opts.StopTime != nil {
		if stopPast {
			s.Close()
		} else {
			d := time.Until(*opts.StopTime)
			s.stopTimer = time.AfterFunc(d, s.Close)
		}
	}
	return s
}

// Unsubscribe tears down the subscription with the given ID, if any.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	s, ok := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()
	if ok {
		s.closeChannel()
	}
}

// matches reports whether ev passes s's XPath filter; an empty filter
// matches every event.
func (s *Subscription) matches(ev Event) bool {
	if s.filter == "" {
		return true
	}
	ok, err := xpath.EvalBoolean(s.filter, xpath.EvalContext{
		Tree:  ev.Tree,
		Node:  ev.Root,
		NSMap: s.nsmap,
	})
	if err != nil {
		log.Errorf("notify: subscription %s filter error: %v", s.ID, err)
		return false
	}
	return ok
}
