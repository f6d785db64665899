package clock

import (
	"reflect"
	"testing"
	"time"
)

func TestFakeAdvanceFiresInOrder(t *testing.T) {
	c := NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	var got []string
	c.AfterFunc(800*time.Millisecond, func() { got = append(got, "b") })
	c.AfterFunc(700*time.Millisecond, func() {
		got = append(got, "a")
		c.AfterFunc(800*time.Millisecond, func() { got = append(got, "c") })
	})

	c.Advance(time.Second)
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("after 1s got %v", got)
	}
	c.Advance(time.Second)
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("after 2s got %v", got)
	}
	if c.Pending() != 0 {
		t.Fatalf("pending = %d", c.Pending())
	}
}

func TestFakeStop(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	fired := false
	tm := c.AfterFunc(time.Second, func() { fired = true })
	if !tm.Stop() {
		t.Fatalf("first Stop should report true")
	}
	if tm.Stop() {
		t.Fatalf("second Stop should report false")
	}
	c.Advance(2 * time.Second)
	if fired {
		t.Fatalf("stopped timer fired")
	}
}

func TestDayHelpers(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 30, 0, 0, time.UTC)
	if Day(now) != "2026-03-01" {
		t.Fatalf("Day = %s", Day(now))
	}
	if Yesterday(now) != "2026-02-28" {
		t.Fatalf("Yesterday = %s", Yesterday(now))
	}
}
