package containers

import "testing"

func TestRingQueueOrder(t *testing.T) {
	rq := NewRingQueue[int](3)
	if _, err := rq.Dequeue(); err != ErrQueueEmpty {
		t.Fatalf("empty dequeue: %v", err)
	}
	for i := 1; i <= 3; i++ {
		if err := rq.Enqueue(i); err != nil {
			t.Fatal(err)
		}
	}
	if err := rq.Enqueue(4); err != ErrQueueFull {
		t.Fatalf("full enqueue: %v", err)
	}
	if v, _ := rq.Peek(); v != 1 {
		t.Errorf("peek %d", v)
	}
	if v, _ := rq.Dequeue(); v != 1 {
		t.Errorf("dequeue %d", v)
	}
	rq.Push(4)
	rq.Push(5)
	var got []int
	rq.Each(func(v int) { got = append(got, v) })
	want := []int{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
