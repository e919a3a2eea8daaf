package hook

import "testing"

func TestBacklogReplayedInOrder(t *testing.T) {
	var h Hook[int]
	h.Fire(1)
	h.Fire(2)
	var got []int
	h.Set(func(v int) { got = append(got, v) })
	h.Fire(3)
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("got %v", got)
	}
}

func TestReplaceHandler(t *testing.T) {
	var h Hook[string]
	a, b := 0, 0
	h.Set(func(string) { a++ })
	h.Fire("x")
	h.Set(func(string) { b++ })
	h.Fire("y")
	if a != 1 || b != 1 {
		t.Fatalf("a=%d b=%d", a, b)
	}
}
