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

package notify

import (
	"sync"
	"sync/atomic"
	"time"
)

// Subscription is one subscriber's live view of the bus: a bounded
// channel of matching Events plus a monotonic count of events dropped
// to backpressure.
type Subscription struct {
	ID        string
	bus       *Bus
	filter    string
	nsmap     map[string]string
	ch        chan Event
	dropped   uint64
	closeOnce sync.Once
	stopTimer *time.Timer
}

// Events returns the channel Events are delivered on. It is closed
// when the subscription is closed (by Close, by reaching its
// stop-time, or by the bus being told to Unsubscribe it).
func (s *Subscription) Events() <-chan Event { return s.ch }

// Dropped returns the number of events dropped for this subscription
// so far due to its delivery window being full.
func (s *Subscription) Dropped() uint64 { return atomic.LoadUint64(&s.dropped) }

func (s *Subscription) recordDrop() { atomic.AddUint64(&s.dropped, 1) }

// Close unregisters the subscription from its bus (if still
// registered) and closes its event channel. It is safe to call more
// than once.
func (s *Subscription) Close() {
	if s.stopTimer != nil {
		s.stopTimer.Stop()
	}
	if s.bus != nil {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.ID)
		s.bus.mu.Unlock()
	}
	s.closeChannel()
}

func (s *Subscription) closeChannel() {
	s.closeOnce.Do(func() { close(s.ch) })
}
