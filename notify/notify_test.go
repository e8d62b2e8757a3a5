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
	"testing"
	"time"

	"github.com/nmscore/netconfd/node"
)

func leafEvent(t *testing.T, name, body string) Event {
	t.Helper()
	tree := node.New("notif", "urn:ex")
	leaf := tree.Create(node.KindLeaf, name, "urn:ex", nil)
	tree.SetBody(leaf, body)
	if err := tree.AppendChild(tree.Root(), leaf); err != nil {
		t.Fatalf("AppendChild: %v", err)
	}
	return Event{Module: "ex", Name: "link-event", Tree: tree, Root: tree.Root()}
}

func TestPublishFanOut(t *testing.T) {
	b := NewBus(16)
	sub := b.Subscribe(SubscribeOptions{})
	defer sub.Close()

	b.Publish(leafEvent(t, "ifname", "eth0"))

	select {
	case ev := <-sub.Events():
		if ev.Seq != 1 {
			t.Fatalf("got seq %d, want 1", ev.Seq)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestFilterOnlyDeliversMatching(t *testing.T) {
	b := NewBus(16)
	sub := b.Subscribe(SubscribeOptions{Filter: "ifname='eth0'"})
	defer sub.Close()

	b.Publish(leafEvent(t, "ifname", "eth1"))
	b.Publish(leafEvent(t, "ifname", "eth0"))

	select {
	case ev := <-sub.Events():
		if ev.Seq != 2 {
			t.Fatalf("got seq %d, want 2 (the eth1 event should have been filtered out)", ev.Seq)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestReplayFromStartTime(t *testing.T) {
	b := NewBus(16)
	before := time.Now()
	b.Publish(leafEvent(t, "ifname", "eth0"))
	time.Sleep(5 * time.Millisecond)
	cutoff := time.Now()
	time.Sleep(5 * time.Millisecond)
	b.Publish(leafEvent(t, "ifname", "eth1"))

	sub := b.Subscribe(SubscribeOptions{StartTime: &cutoff})
	defer sub.Close()

	select {
	case ev := <-sub.Events():
		if ev.Seq != 2 {
			t.Fatalf("got seq %d, want 2 (only the post-cutoff event should replay)", ev.Seq)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for replay")
	}

	_ = before
}

// TestStopTimeInPastReplaysThenTerminates is spec.md §4.H's "stop-time
// in the past" case: the subscription replays matching buffered events
// and then its channel is closed rather than being registered for live
// delivery.
func TestStopTimeInPastReplaysThenTerminates(t *testing.T) {
	b := NewBus(16)
	start := time.Now().Add(-time.Hour)
	stop := time.Now().Add(-time.Minute)
	b.Publish(leafEvent(t, "ifname", "eth0"))

	sub := b.Subscribe(SubscribeOptions{StartTime: &start, StopTime: &stop})

	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("expected the buffered event to replay before the channel closed")
		}
		if ev.Seq != 1 {
			t.Fatalf("got seq %d, want 1", ev.Seq)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for replay")
	}

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatal("expected channel to be closed after a past stop-time")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}

	b.Publish(leafEvent(t, "ifname", "eth1"))
	if len(b.subs) != 0 {
		t.Fatal("expected a past-stop-time subscription never to be registered for live delivery")
	}
}

func TestBackpressureDrop(t *testing.T) {
	b := NewBus(16)
	sub := b.Subscribe(SubscribeOptions{Window: 1})
	defer sub.Close()

	b.Publish(leafEvent(t, "ifname", "eth0"))
	b.Publish(leafEvent(t, "ifname", "eth1")) // window full, must be dropped

	if sub.Dropped() != 1 {
		t.Fatalf("Dropped() = %d, want 1", sub.Dropped())
	}
	<-sub.Events() // drain the first event
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus(16)
	sub := b.Subscribe(SubscribeOptions{})
	b.Unsubscribe(sub.ID)

	_, ok := <-sub.Events()
	if ok {
		t.Fatal("expected channel closed after Unsubscribe")
	}
}

func TestReplayBufferBounded(t *testing.T) {
	b := NewBus(2)
	b.Publish(leafEvent(t, "ifname", "eth0"))
	b.Publish(leafEvent(t, "ifname", "eth1"))
	b.Publish(leafEvent(t, "ifname", "eth2"))

	early := time.Now().Add(-time.Hour)
	sub := b.Subscribe(SubscribeOptions{StartTime: &early, Window: 16})
	defer sub.Close()

	var seqs []uint64
	for i := 0; i < 2; i++ {
		select {
		case ev := <-sub.Events():
			seqs = append(seqs, ev.Seq)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for replay")
		}
	}
	if len(seqs) != 2 || seqs[0] != 2 || seqs[1] != 3 {
		t.Fatalf("got %v, want [2 3] (the oldest event should have aged out of a capacity-2 buffer)", seqs)
	}
}
