package mqtt

import "testing"

func pushN(rb *ringBuffer, from, to int) {
	for i := from; i < to; i++ {
		rb.push(bufferedMsg{topic: Topic, payload: []byte{byte(i)}})
	}
}

func TestRingBufferEmptyDrain(t *testing.T) {
	rb := newRingBuffer(4)
	if got := rb.drainAll(); got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
}

func TestRingBufferKeepsOrder(t *testing.T) {
	rb := newRingBuffer(8)
	pushN(rb, 0, 5)
	if rb.len() != 5 {
		t.Fatalf("len: got %d, want 5", rb.len())
	}

	got := rb.drainAll()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	for i, m := range got {
		if m.payload[0] != byte(i) {
			t.Errorf("item %d: got payload %d", i, m.payload[0])
		}
	}
	if rb.drainAll() != nil {
		t.Error("second drain should be empty")
	}
}

func TestRingBufferOverflowDropsOldest(t *testing.T) {
	rb := newRingBuffer(4)
	pushN(rb, 0, 7)

	if rb.len() != 4 {
		t.Fatalf("len: got %d, want 4", rb.len())
	}
	if rb.dropped != 3 {
		t.Errorf("dropped: got %d, want 3", rb.dropped)
	}

	got := rb.drainAll()
	for i, m := range got {
		if want := byte(i + 3); m.payload[0] != want {
			t.Errorf("item %d: got %d, want %d", i, m.payload[0], want)
		}
	}
	if rb.dropped != 0 {
		t.Error("drain should reset drop counter")
	}
}

func TestRingBufferReusableAfterDrain(t *testing.T) {
	rb := newRingBuffer(3)
	pushN(rb, 0, 5)
	rb.drainAll()
	pushN(rb, 10, 12)

	got := rb.drainAll()
	if len(got) != 2 || got[0].payload[0] != 10 || got[1].payload[0] != 11 {
		t.Errorf("unexpected contents after reuse: %v", got)
	}
}
