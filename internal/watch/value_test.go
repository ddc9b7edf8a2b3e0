package watch

import "testing"

func TestSubscribeReceivesCurrentThenChanges(t *testing.T) {
	v := New(1)
	ch, cancel := v.Subscribe(4)
	defer cancel()

	v.Store(2)
	v.Store(3)

	for _, want := range []int{1, 2, 3} {
		if got := <-ch; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
	}
	if v.Load() != 3 {
		t.Fatalf("expected current value 3, got %d", v.Load())
	}
}

func TestSlowSubscriberKeepsNewest(t *testing.T) {
	v := New("a")
	ch, cancel := v.Subscribe(1)
	defer cancel()

	v.Store("b")
	v.Store("c")

	if got := <-ch; got != "c" {
		t.Fatalf("expected newest value c, got %q", got)
	}
}

func TestCancelClosesChannel(t *testing.T) {
	v := New(0)
	ch, cancel := v.Subscribe(1)
	<-ch
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	v.Store(5)
}
