package events

import "testing"

func TestMemoryPublisherCopies(t *testing.T) {
	p := NewMemoryPublisher()
	p.Publish(Event{Name: "a", ModelID: "m"})
	p.Publish(Event{Name: "b"})
	p.Publish(Event{Name: "a"})

	evs := p.Events()
	evs[0].Name = "mutated"
	if p.Events()[0].Name != "a" {
		t.Fatalf("Events must return a copy")
	}
	if got := p.Count("a"); got != 2 {
		t.Fatalf("Count(a) = %d", got)
	}
	names := p.Names()
	if len(names) != 3 || names[1] != "b" {
		t.Fatalf("names = %v", names)
	}
}

func TestMultiAndFunc(t *testing.T) {
	mem := NewMemoryPublisher()
	var seen []string
	m := Multi{mem, nil, Func(func(e Event) { seen = append(seen, e.Name) })}
	m.Publish(Event{Name: "x"})
	if mem.Count("x") != 1 || len(seen) != 1 {
		t.Fatalf("fan-out failed: mem=%d func=%v", mem.Count("x"), seen)
	}
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(Noop); !ok {
		t.Fatalf("expected Noop for nil publisher")
	}
	mem := NewMemoryPublisher()
	if OrNoop(mem) != Publisher(mem) {
		t.Fatalf("expected passthrough")
	}
}
