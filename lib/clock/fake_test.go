// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeAfterFunc(t *testing.T) {
	fake := Fake(time.Unix(1000, 0))

	fired := 0
	fake.AfterFunc(5*time.Second, func() { fired++ })

	fake.Advance(4 * time.Second)
	if fired != 0 {
		t.Fatalf("timer fired early: %d", fired)
	}
	fake.Advance(1 * time.Second)
	if fired != 1 {
		t.Fatalf("expected one fire, got %d", fired)
	}
	fake.Advance(10 * time.Second)
	if fired != 1 {
		t.Fatalf("one-shot timer fired again: %d", fired)
	}
}

func TestFakeAfterFuncStop(t *testing.T) {
	fake := Fake(time.Unix(1000, 0))

	fired := false
	timer := fake.AfterFunc(5*time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("Stop on an armed timer returned false")
	}
	if timer.Stop() {
		t.Fatal("second Stop returned true")
	}
	fake.Advance(10 * time.Second)
	if fired {
		t.Fatal("stopped timer fired")
	}
	if got := fake.PendingCount(); got != 0 {
		t.Fatalf("PendingCount = %d, want 0", got)
	}
}

func TestFakeAfterFuncReset(t *testing.T) {
	fake := Fake(time.Unix(1000, 0))

	fired := 0
	timer := fake.AfterFunc(5*time.Second, func() { fired++ })

	fake.Advance(4 * time.Second)
	if !timer.Reset(5 * time.Second) {
		t.Fatal("Reset on an active timer returned false")
	}

	// The original deadline passes without firing.
	fake.Advance(2 * time.Second)
	if fired != 0 {
		t.Fatalf("timer fired at original deadline: %d", fired)
	}
	fake.Advance(3 * time.Second)
	if fired != 1 {
		t.Fatalf("expected one fire after reset deadline, got %d", fired)
	}
}

func TestFakeAfterFuncResetAfterFire(t *testing.T) {
	fake := Fake(time.Unix(1000, 0))

	fired := 0
	timer := fake.AfterFunc(time.Second, func() { fired++ })
	fake.Advance(time.Second)

	if timer.Reset(time.Second) {
		t.Fatal("Reset on a fired timer reported it as active")
	}
	fake.Advance(time.Second)
	if fired != 2 {
		t.Fatalf("re-armed timer did not fire: %d", fired)
	}
}

func TestFakeAfter(t *testing.T) {
	fake := Fake(time.Unix(1000, 0))

	ch := fake.After(3 * time.Second)
	select {
	case <-ch:
		t.Fatal("After channel received before deadline")
	default:
	}

	fake.Advance(3 * time.Second)
	select {
	case at := <-ch:
		if !at.Equal(time.Unix(1003, 0)) {
			t.Fatalf("received time %v, want %v", at, time.Unix(1003, 0))
		}
	default:
		t.Fatal("After channel did not receive at deadline")
	}
}

func TestFakeDeadlineOrder(t *testing.T) {
	fake := Fake(time.Unix(1000, 0))

	var order []string
	fake.AfterFunc(2*time.Second, func() { order = append(order, "second") })
	fake.AfterFunc(1*time.Second, func() { order = append(order, "first") })

	fake.Advance(5 * time.Second)
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("callbacks fired out of deadline order: %v", order)
	}
}
