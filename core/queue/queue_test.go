package queue

import (
	"fmt"
	"testing"

	"GuildFM/model"
)

func makeTracks(n int) []*model.Track {
	tracks := make([]*model.Track, n)
	for i := range tracks {
		tracks[i] = &model.Track{Encoded: fmt.Sprintf("enc-%d", i), Title: fmt.Sprintf("Song %d", i)}
	}
	return tracks
}

func TestQueue_FIFOWithLoopOff(t *testing.T) {
	q := New()
	tracks := makeTracks(5)
	for _, tr := range tracks {
		q.Add(tr)
	}

	for i, want := range tracks {
		got := q.GetNext()
		if got != want {
			t.Fatalf("call %d: expected %s, got %v", i, want.Title, got)
		}
		if q.Current() != got {
			t.Errorf("call %d: current should be the returned track", i)
		}
	}

	if got := q.GetNext(); got != nil {
		t.Errorf("expected nil after exhausting queue, got %s", got.Title)
	}
	if len(q.History()) != 4 {
		t.Errorf("expected 4 tracks in history, got %d", len(q.History()))
	}
}

func TestQueue_LoopTrackRepeatsCurrent(t *testing.T) {
	q := New()
	tracks := makeTracks(3)
	for _, tr := range tracks {
		q.Add(tr)
	}

	first := q.GetNext()
	q.SetLoopMode(model.LoopTrack)

	for i := 0; i < 10; i++ {
		if got := q.GetNext(); got != first {
			t.Fatalf("iteration %d: expected %s, got %v", i, first.Title, got)
		}
	}
	if q.Len() != 2 {
		t.Errorf("loop track should not consume pending, got length %d", q.Len())
	}
}

func TestQueue_LoopTrackWithoutCurrent(t *testing.T) {
	q := New()
	q.SetLoopMode(model.LoopTrack)
	tr := makeTracks(1)[0]
	q.Add(tr)

	if got := q.GetNext(); got != tr {
		t.Fatalf("expected pending track when nothing is current, got %v", got)
	}
}

func TestQueue_LoopQueueCycles(t *testing.T) {
	q := New()
	q.SetLoopMode(model.LoopQueue)
	tracks := makeTracks(3)
	for _, tr := range tracks {
		q.Add(tr)
	}

	var played []*model.Track
	for i := 0; i < 9; i++ {
		played = append(played, q.GetNext())
	}

	for i, tr := range played {
		if tr != tracks[i%3] {
			t.Fatalf("call %d: expected %s, got %v", i, tracks[i%3].Title, tr)
		}
	}

	seen := map[*model.Track]bool{}
	if q.Current() != nil {
		seen[q.Current()] = true
	}
	for _, tr := range append(q.Pending(), q.History()...) {
		if seen[tr] {
			t.Fatalf("%s appears twice in queue state", tr.Title)
		}
		seen[tr] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected 3 distinct tracks in state, got %d", len(seen))
	}
}

func TestQueue_LoopQueueRefillOrder(t *testing.T) {
	q := New()
	tracks := makeTracks(3)
	for _, tr := range tracks {
		q.Add(tr)
	}
	for range tracks {
		q.GetNext()
	}
	// 耗尽后 history = [0 1]，current = 2
	q.SetLoopMode(model.LoopQueue)

	if got := q.GetNext(); got != tracks[0] {
		t.Fatalf("expected refill to start from oldest history entry, got %s", got.Title)
	}
	pending := q.Pending()
	if len(pending) != 1 || pending[0] != tracks[1] {
		t.Errorf("expected pending [Song 1], got %v", pending)
	}
	history := q.History()
	if len(history) != 1 || history[0] != tracks[2] {
		t.Errorf("expected history [Song 2], got %v", history)
	}
}

func TestQueue_Clear(t *testing.T) {
	tests := []struct {
		name  string
		setup func(q *Queue)
	}{
		{"empty", func(q *Queue) {}},
		{"pending only", func(q *Queue) {
			for _, tr := range makeTracks(3) {
				q.Add(tr)
			}
		}},
		{"with current and history", func(q *Queue) {
			for _, tr := range makeTracks(4) {
				q.Add(tr)
			}
			q.GetNext()
			q.GetNext()
		}},
		{"loop queue", func(q *Queue) {
			q.SetLoopMode(model.LoopQueue)
			for _, tr := range makeTracks(2) {
				q.Add(tr)
			}
			q.GetNext()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New()
			tt.setup(q)
			q.Clear()

			if q.Current() != nil {
				t.Error("current should be nil")
			}
			if len(q.Pending()) != 0 {
				t.Errorf("pending should be empty, got %d", len(q.Pending()))
			}
			if len(q.History()) != 0 {
				t.Errorf("history should be empty, got %d", len(q.History()))
			}
			if !q.Empty() {
				t.Error("queue should report empty")
			}
		})
	}
}

func TestQueue_StartMovesPreviousToHistory(t *testing.T) {
	q := New()
	tracks := makeTracks(2)

	q.Start(tracks[0])
	q.Start(tracks[1])

	if q.Current() != tracks[1] {
		t.Errorf("expected current to be %s", tracks[1].Title)
	}
	history := q.History()
	if len(history) != 1 || history[0] != tracks[0] {
		t.Errorf("expected previous current in history, got %v", history)
	}

	q.Start(tracks[1])
	if len(q.History()) != 1 {
		t.Error("restarting the same track should not duplicate it in history")
	}
}

func TestQueue_PendingIsCopy(t *testing.T) {
	q := New()
	for _, tr := range makeTracks(2) {
		q.Add(tr)
	}
	p := q.Pending()
	p[0] = nil
	if q.Pending()[0] == nil {
		t.Error("Pending should return a copy")
	}
}

func TestSnapshot(t *testing.T) {
	q := New()
	a, b := &model.Track{Title: "a"}, &model.Track{Title: "b"}
	q.Add(a)
	q.Add(b)
	q.GetNext()
	q.SetLoopMode(model.LoopQueue)

	snap := q.Snapshot("g1")
	if snap.GuildID != "g1" || snap.LoopMode != "queue" || snap.Current != a {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if len(snap.Pending) != 1 || snap.Pending[0] != b || len(snap.History) != 0 {
		t.Errorf("pending/history = %v / %v", snap.Pending, snap.History)
	}
}

func TestQueue_RetireLeavesLoopTrack(t *testing.T) {
	q := New()
	tracks := makeTracks(2)
	q.Add(tracks[0])
	q.Add(tracks[1])
	q.SetLoopMode(model.LoopTrack)

	if got := q.GetNext(); got != tracks[0] {
		t.Fatalf("expected first track, got %v", got)
	}
	q.Retire()
	if q.Current() != nil || q.HistoryLen() != 1 {
		t.Fatalf("retire should move current to history, current=%v history=%d", q.Current(), q.HistoryLen())
	}
	// 单曲循环下当前曲目被移走后从待播列表继续
	if got := q.GetNext(); got != tracks[1] {
		t.Fatalf("expected second track after retire, got %v", got)
	}

	q.Clear()
	q.Retire()
	if q.HistoryLen() != 0 {
		t.Errorf("retire without current should be a no-op")
	}
}
