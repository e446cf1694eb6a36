package history

import (
	"sync"
	"testing"
	"time"

	"github.com/testpulse/testpulse/record"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// run builds a summary whose duration encodes n so ordering is observable.
func run(n int) record.RunSummary {
	return record.RunSummary{
		Outcome:   record.OutcomePassed,
		StartTime: baseTime.Add(time.Duration(n) * time.Minute),
		Duration:  time.Duration(n) * time.Millisecond,
	}
}

func TestAppendAndSnapshot(t *testing.T) {
	st := New(100)
	st.Append("fp-1", run(1))
	st.Append("fp-1", run(2))

	snap, ok := st.Snapshot("fp-1")
	if !ok {
		t.Fatal("Snapshot: expected window, got none")
	}
	if len(snap) != 2 {
		t.Fatalf("Snapshot length = %d, want 2", len(snap))
	}
	if snap[0].Duration != 1*time.Millisecond || snap[1].Duration != 2*time.Millisecond {
		t.Errorf("Snapshot not in oldest-to-newest order: %v, %v", snap[0].Duration, snap[1].Duration)
	}
}

func TestSnapshot_Missing(t *testing.T) {
	st := New(100)
	if _, ok := st.Snapshot("unknown"); ok {
		t.Fatal("Snapshot on empty store: expected false")
	}
	if st.Len("unknown") != 0 {
		t.Error("Len on unknown fingerprint should be 0")
	}
}

func TestAppend_EvictsOldestAtCapacity(t *testing.T) {
	st := New(3)
	for i := 1; i <= 5; i++ {
		st.Append("fp", run(i))
	}

	snap, _ := st.Snapshot("fp")
	if len(snap) != 3 {
		t.Fatalf("window size = %d, want 3", len(snap))
	}
	// Runs 1 and 2 were evicted; 3..5 remain in order.
	for i, want := range []int{3, 4, 5} {
		if snap[i].Duration != time.Duration(want)*time.Millisecond {
			t.Errorf("snap[%d].Duration = %v, want %dms", i, snap[i].Duration, want)
		}
	}
}

func TestAppend_ReturnsLifetimeCount(t *testing.T) {
	st := New(2)
	for i := 1; i <= 4; i++ {
		if got := st.Append("fp", run(i)); got != uint64(i) {
			t.Errorf("Append #%d returned %d", i, got)
		}
	}
	if st.Len("fp") != 2 {
		t.Errorf("Len = %d, want capacity 2", st.Len("fp"))
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	st := New(10)
	st.Append("fp", run(1))
	snap, _ := st.Snapshot("fp")
	snap[0].Duration = 999 * time.Hour

	again, _ := st.Snapshot("fp")
	if again[0].Duration != 1*time.Millisecond {
		t.Error("mutating a snapshot leaked into the store")
	}
}

func TestCount(t *testing.T) {
	st := New(10)
	st.Append("a", run(1))
	st.Append("b", run(1))
	st.Append("a", run(2))
	if st.Count() != 2 {
		t.Errorf("Count = %d, want 2", st.Count())
	}
}

func TestConcurrentAppends(t *testing.T) {
	const (
		goroutines = 16
		perG       = 200
	)
	st := New(goroutines * perG)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				st.Append("shared", run(i))
				st.Append("private", run(i))
			}
		}()
	}
	wg.Wait()

	if got := st.Len("shared"); got != goroutines*perG {
		t.Errorf("shared window holds %d runs, want %d", got, goroutines*perG)
	}
}
