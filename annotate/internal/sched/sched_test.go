package sched

import (
	"reflect"
	"testing"
	"time"
)

func TestManual_FiresInOrder(t *testing.T) {
	m := NewManual()
	var got []string
	m.AfterFunc(30*time.Millisecond, func() { got = append(got, "c") })
	m.AfterFunc(10*time.Millisecond, func() { got = append(got, "a") })
	m.AfterFunc(20*time.Millisecond, func() { got = append(got, "b") })

	m.Advance(15 * time.Millisecond)
	if !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("after 15ms: got %v", got)
	}
	m.Advance(15 * time.Millisecond)
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("after 30ms: got %v", got)
	}
	if m.Now() != 30*time.Millisecond {
		t.Fatalf("Now: got %v", m.Now())
	}
}

func TestManual_Stop(t *testing.T) {
	m := NewManual()
	fired := false
	tm := m.AfterFunc(time.Second, func() { fired = true })
	if !tm.Stop() {
		t.Fatal("Stop: got false on armed timer")
	}
	if tm.Stop() {
		t.Fatal("Stop: got true on stopped timer")
	}
	m.Advance(2 * time.Second)
	if fired {
		t.Fatal("stopped timer fired")
	}
	if m.Pending() != 0 {
		t.Fatalf("Pending: got %d, want 0", m.Pending())
	}
}

func TestManual_RearmFromCallback(t *testing.T) {
	m := NewManual()
	n := 0
	var tick func()
	tick = func() {
		n++
		m.AfterFunc(10*time.Millisecond, tick)
	}
	m.AfterFunc(10*time.Millisecond, tick)
	m.Advance(35 * time.Millisecond)
	if n != 3 {
		t.Fatalf("ticks: got %d, want 3", n)
	}
}

func TestLoop_PostsCallback(t *testing.T) {
	ch := make(chan func(), 1)
	l := NewLoop(func(f func()) { ch <- f })
	done := make(chan struct{})
	l.AfterFunc(time.Millisecond, func() { close(done) })
	select {
	case f := <-ch:
		f()
	case <-time.After(time.Second):
		t.Fatal("callback never posted")
	}
	select {
	case <-done:
	default:
		t.Fatal("posted callback did not run")
	}
}
