package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"GuildFM/core/lyrics"
	"GuildFM/core/retention"
	"GuildFM/model"
)

const testGuild = "guild-1"

type fakeEngine struct {
	mu          sync.Mutex
	connects    int
	played      []*model.Track
	stops       int
	disconnects int
	paused      bool
	seekMs      int64
	playErr     error
	failTitles  map[string]bool
	state       model.PlayerState
	hasState    bool
}

func (e *fakeEngine) Connect(ctx context.Context, guildID string, voice model.VoiceState) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connects++
	return nil
}

func (e *fakeEngine) Play(ctx context.Context, guildID string, track *model.Track) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playErr != nil {
		return e.playErr
	}
	if e.failTitles[track.Title] {
		return errors.New("track unavailable")
	}
	e.played = append(e.played, track)
	return nil
}

func (e *fakeEngine) Stop(ctx context.Context, guildID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stops++
	return nil
}

func (e *fakeEngine) Pause(ctx context.Context, guildID string, paused bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = paused
	return nil
}

func (e *fakeEngine) Seek(ctx context.Context, guildID string, positionMs int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seekMs = positionMs
	return nil
}

func (e *fakeEngine) Disconnect(ctx context.Context, guildID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disconnects++
	return nil
}

func (e *fakeEngine) State(guildID string) (model.PlayerState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.hasState
}

func (e *fakeEngine) Search(ctx context.Context, query string, source model.Source) (model.SearchResult, error) {
	if query == "nothing" {
		return model.SearchResult{}, nil
	}
	return model.SearchResult{Tracks: []*model.Track{testTrack(query)}}, nil
}

func (e *fakeEngine) setState(st model.PlayerState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = st
	e.hasState = true
}

func (e *fakeEngine) playedTitles() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.played))
	for _, t := range e.played {
		out = append(out, t.Title)
	}
	return out
}

func (e *fakeEngine) disconnectCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disconnects
}

type recorder struct {
	mu     sync.Mutex
	events []*model.Event
}

func (r *recorder) Publish(event *model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) count(typ model.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func (r *recorder) waitFor(t *testing.T, typ model.EventType, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.count(typ) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %s events, got %d", n, typ, r.count(typ))
}

type logRecorder struct {
	mu    sync.Mutex
	rows  map[string]int
	order []string
}

func (l *logRecorder) Write(ctx context.Context, table string, row retention.Row) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rows == nil {
		l.rows = make(map[string]int)
	}
	l.rows[table]++
	entry := table
	if ll, ok := row.(*model.LyricsLog); ok {
		entry = ll.Text
	}
	l.order = append(l.order, entry)
}

func (l *logRecorder) count(table string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rows[table]
}

func (l *logRecorder) written() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.order...)
}

type fetcherFunc func(ctx context.Context, title, artist string, durationMs int64) []lyrics.Line

func (f fetcherFunc) Fetch(ctx context.Context, title, artist string, durationMs int64) []lyrics.Line {
	return f(ctx, title, artist, durationMs)
}

func testTrack(title string) *model.Track {
	return &model.Track{Encoded: "enc-" + title, Title: title, Author: "artist", DurationMs: 180000}
}

func newTestController(t *testing.T, deps Deps) (*Controller, *fakeEngine, *recorder) {
	t.Helper()
	eng := &fakeEngine{}
	rec := &recorder{}
	deps.Engine = eng
	deps.Notifier = rec
	if deps.GracePeriod == 0 {
		deps.GracePeriod = time.Hour
	}
	c := New(deps)
	c.UpdateVoice(testGuild, model.VoiceState{ChannelID: "vc", SessionID: "sid", Token: "tok", Endpoint: "ep"})
	t.Cleanup(c.Close)
	return c, eng, rec
}

// barrier 借助 mailbox 的顺序等待之前投递的事件处理完
func barrier(t *testing.T, c *Controller) model.QueueSnapshot {
	t.Helper()
	snap, err := c.Snapshot(context.Background(), testGuild)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	return snap
}

func TestPlayStartsThenQueues(t *testing.T) {
	c, eng, rec := newTestController(t, Deps{})
	ctx := context.Background()

	res, err := c.Play(ctx, testGuild, testTrack("a"))
	if err != nil {
		t.Fatalf("Play(a) error = %v", err)
	}
	if res.Queued {
		t.Fatalf("first track should start immediately")
	}

	res, err = c.Play(ctx, testGuild, testTrack("b"))
	if err != nil {
		t.Fatalf("Play(b) error = %v", err)
	}
	if !res.Queued || res.Position != 1 {
		t.Fatalf("second track result = %+v, want queued at 1", res)
	}

	if got := eng.playedTitles(); len(got) != 1 || got[0] != "a" {
		t.Fatalf("engine played %v, want [a]", got)
	}
	snap := barrier(t, c)
	if snap.State != "playing" || snap.Current == nil || snap.Current.Title != "a" || len(snap.Pending) != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if rec.count(model.EventTrackStart) != 1 {
		t.Fatalf("track_start events = %d, want 1", rec.count(model.EventTrackStart))
	}
}

func TestPlayWithoutVoiceState(t *testing.T) {
	eng := &fakeEngine{}
	c := New(Deps{Engine: eng})
	defer c.Close()

	_, err := c.Play(context.Background(), "other", testTrack("a"))
	if !errors.Is(err, ErrNoVoiceState) {
		t.Fatalf("Play() error = %v, want ErrNoVoiceState", err)
	}
	var pe *PlaybackError
	if !errors.As(err, &pe) || pe.Message == "" {
		t.Fatalf("error should carry a user message, got %v", err)
	}
	if c.Registry().Len() != 0 {
		t.Fatalf("session should be closed after failed connect")
	}
}

func TestPlayFailureLeavesQueueUntouched(t *testing.T) {
	c, eng, _ := newTestController(t, Deps{})
	eng.playErr = errors.New("load failed")

	if _, err := c.Play(context.Background(), testGuild, testTrack("a")); err == nil {
		t.Fatalf("Play() should fail")
	}
	snap := barrier(t, c)
	if snap.Current != nil || len(snap.Pending) != 0 || len(snap.History) != 0 {
		t.Fatalf("queue changed after failed play: %+v", snap)
	}
	if snap.State != "idle" {
		t.Fatalf("state = %s, want idle", snap.State)
	}
}

func TestTrackEndReasons(t *testing.T) {
	tests := []struct {
		reason  string
		advance bool
	}{
		{"finished", true},
		{"STOPPED", true},
		{"loadFailed", false},
		{"LOAD_FAILED", false},
		{"cleanup", false},
		{"replaced", false},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			c, eng, _ := newTestController(t, Deps{})
			ctx := context.Background()
			a, b := testTrack("a"), testTrack("b")
			if _, err := c.Play(ctx, testGuild, a); err != nil {
				t.Fatalf("Play(a) error = %v", err)
			}
			if _, err := c.Play(ctx, testGuild, b); err != nil {
				t.Fatalf("Play(b) error = %v", err)
			}

			c.OnTrackEnd(testGuild, a, tt.reason)
			snap := barrier(t, c)

			played := eng.playedTitles()
			if tt.advance {
				if len(played) != 2 || played[1] != "b" || snap.Current.Title != "b" {
					t.Fatalf("expected advance to b, played %v", played)
				}
			} else {
				if len(played) != 1 || snap.Current.Title != "a" || len(snap.Pending) != 1 {
					t.Fatalf("queue must not advance on %s, played %v", tt.reason, played)
				}
			}
		})
	}
}

func TestStaleTrackEndIgnored(t *testing.T) {
	c, eng, _ := newTestController(t, Deps{})
	ctx := context.Background()
	if _, err := c.Play(ctx, testGuild, testTrack("a")); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if _, err := c.Play(ctx, testGuild, testTrack("b")); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	c.OnTrackEnd(testGuild, testTrack("old"), "finished")
	barrier(t, c)
	if got := eng.playedTitles(); len(got) != 1 {
		t.Fatalf("stale end event advanced the queue: %v", got)
	}
}

func TestGraceDisconnect(t *testing.T) {
	c, eng, rec := newTestController(t, Deps{GracePeriod: 30 * time.Millisecond})
	a := testTrack("a")
	if _, err := c.Play(context.Background(), testGuild, a); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	c.OnTrackEnd(testGuild, a, "finished")
	rec.waitFor(t, model.EventQueueEmptyDisconnect, 1)

	if eng.disconnectCount() != 1 {
		t.Fatalf("disconnects = %d, want 1", eng.disconnectCount())
	}
	if c.Registry().Len() != 0 {
		t.Fatalf("session should be removed after disconnect")
	}
}

func TestGraceAbortsWhenEngineStillPlaying(t *testing.T) {
	c, eng, rec := newTestController(t, Deps{GracePeriod: 20 * time.Millisecond})
	a := testTrack("a")
	if _, err := c.Play(context.Background(), testGuild, a); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	eng.setState(model.PlayerState{Connected: true, Playing: true})

	c.OnTrackEnd(testGuild, a, "finished")
	time.Sleep(100 * time.Millisecond)
	barrier(t, c)

	if eng.disconnectCount() != 0 || rec.count(model.EventQueueEmptyDisconnect) != 0 {
		t.Fatalf("disconnect must not happen while the engine is playing")
	}
	if c.Registry().Len() != 1 {
		t.Fatalf("session should survive")
	}
}

func TestNewRequestDuringGraceCancelsDisconnect(t *testing.T) {
	c, eng, rec := newTestController(t, Deps{GracePeriod: 50 * time.Millisecond})
	ctx := context.Background()
	a := testTrack("a")
	if _, err := c.Play(ctx, testGuild, a); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	c.OnTrackEnd(testGuild, a, "finished")
	barrier(t, c)

	res, err := c.Play(ctx, testGuild, testTrack("b"))
	if err != nil || res.Queued {
		t.Fatalf("Play(b) = %+v, %v", res, err)
	}
	time.Sleep(120 * time.Millisecond)
	barrier(t, c)

	if eng.disconnectCount() != 0 || rec.count(model.EventQueueEmptyDisconnect) != 0 {
		t.Fatalf("grace timer should have been cancelled")
	}
}

func TestEngineTrackStartDeduplicated(t *testing.T) {
	logs := &logRecorder{}
	c, _, rec := newTestController(t, Deps{Logs: logs})
	a := testTrack("a")
	if _, err := c.Play(context.Background(), testGuild, a); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	c.OnTrackStart(testGuild, a)
	barrier(t, c)
	time.Sleep(20 * time.Millisecond)

	if n := rec.count(model.EventTrackStart); n != 1 {
		t.Fatalf("track_start events = %d, want 1", n)
	}
	if n := logs.count(playHistoryTable); n != 1 {
		t.Fatalf("history rows = %d, want 1", n)
	}
}

func TestStopClosesSession(t *testing.T) {
	c, eng, rec := newTestController(t, Deps{})
	ctx := context.Background()
	if _, err := c.Play(ctx, testGuild, testTrack("a")); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if err := c.Stop(ctx, testGuild); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if c.Registry().Len() != 0 || eng.disconnectCount() != 1 {
		t.Fatalf("stop should disconnect and close the session")
	}
	if rec.count(model.EventMusicStopped) != 1 {
		t.Fatalf("music_stopped not published")
	}
	if err := c.Stop(ctx, testGuild); !errors.Is(err, ErrNoSession) {
		t.Fatalf("second Stop() error = %v, want ErrNoSession", err)
	}
}

func TestPauseResumeSeek(t *testing.T) {
	c, eng, _ := newTestController(t, Deps{})
	ctx := context.Background()

	if err := c.Pause(ctx, testGuild); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Pause() without session = %v", err)
	}
	if _, err := c.Play(ctx, testGuild, testTrack("a")); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if err := c.Pause(ctx, testGuild); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if snap := barrier(t, c); snap.State != "paused" {
		t.Fatalf("state = %s, want paused", snap.State)
	}
	if err := c.Resume(ctx, testGuild); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if err := c.Seek(ctx, testGuild, 999999); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}

	eng.mu.Lock()
	defer eng.mu.Unlock()
	if eng.paused {
		t.Fatalf("engine still paused")
	}
	if eng.seekMs != 180000 {
		t.Fatalf("seek = %d, want clamped to 180000", eng.seekMs)
	}
}

func TestLyricsDispatched(t *testing.T) {
	prefs := NewMemoryPreferences()
	_ = prefs.SetLyrics(context.Background(), testGuild, true, "text-channel")
	logs := &logRecorder{}
	fetcher := fetcherFunc(func(ctx context.Context, title, artist string, durationMs int64) []lyrics.Line {
		return []lyrics.Line{{Timestamp: 0, Text: "first"}, {Timestamp: 1.0, Text: "second"}}
	})

	c, eng, rec := newTestController(t, Deps{Lyrics: fetcher, Prefs: prefs, Logs: logs})
	c.SetLyricsTiming(5*time.Millisecond, 500*time.Millisecond)
	eng.setState(model.PlayerState{Connected: true, Playing: true})

	if _, err := c.Play(context.Background(), testGuild, testTrack("a")); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	rec.waitFor(t, model.EventLyricsLoaded, 1)
	rec.waitFor(t, model.EventLyricsLine, 1)
	time.Sleep(30 * time.Millisecond)
	if n := rec.count(model.EventLyricsLine); n != 1 {
		t.Fatalf("lyrics_line events = %d before the second line is due", n)
	}

	eng.setState(model.PlayerState{Connected: true, Playing: true, PositionMs: 1000})
	rec.waitFor(t, model.EventLyricsLine, 2)
	time.Sleep(20 * time.Millisecond)
	if n := logs.count(lyricsLogTable); n != 2 {
		t.Fatalf("lyrics log rows = %d, want 2", n)
	}
}

func TestLyricsUnavailable(t *testing.T) {
	prefs := NewMemoryPreferences()
	_ = prefs.SetLyrics(context.Background(), testGuild, true, "text-channel")
	fetcher := fetcherFunc(func(ctx context.Context, title, artist string, durationMs int64) []lyrics.Line {
		return nil
	})

	c, _, rec := newTestController(t, Deps{Lyrics: fetcher, Prefs: prefs})
	if _, err := c.Play(context.Background(), testGuild, testTrack("a")); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	rec.waitFor(t, model.EventLyricsUnavailable, 1)
	if rec.count(model.EventLyricsLoaded) != 0 {
		t.Fatalf("lyrics_loaded published without lines")
	}
}

func TestLyricsFetchedAfterTeardownDiscarded(t *testing.T) {
	prefs := NewMemoryPreferences()
	_ = prefs.SetLyrics(context.Background(), testGuild, true, "text-channel")
	release := make(chan struct{})
	started := make(chan struct{})
	fetcher := fetcherFunc(func(ctx context.Context, title, artist string, durationMs int64) []lyrics.Line {
		close(started)
		<-release
		return []lyrics.Line{{Timestamp: 0, Text: "late"}}
	})

	c, _, rec := newTestController(t, Deps{Lyrics: fetcher, Prefs: prefs})
	ctx := context.Background()
	if _, err := c.Play(ctx, testGuild, testTrack("a")); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	<-started
	if err := c.Stop(ctx, testGuild); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	close(release)
	time.Sleep(50 * time.Millisecond)

	if rec.count(model.EventLyricsLoaded) != 0 || rec.count(model.EventLyricsLine) != 0 {
		t.Fatalf("lyrics from a closed session must be discarded")
	}
}

func TestSnapshotWithoutSession(t *testing.T) {
	c, _, _ := newTestController(t, Deps{})
	snap, err := c.Snapshot(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.State != "idle" || snap.Pending == nil || snap.Current != nil {
		t.Fatalf("unexpected idle snapshot %+v", snap)
	}
	if c.Registry().Len() != 0 {
		t.Fatalf("Snapshot must not create a session")
	}
}

func TestVoiceClosedTearsDown(t *testing.T) {
	c, eng, rec := newTestController(t, Deps{})
	if _, err := c.Play(context.Background(), testGuild, testTrack("a")); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	c.OnVoiceClosed(testGuild, 1000, "normal")
	barrier(t, c)
	if c.Registry().Len() != 1 {
		t.Fatalf("ordinary close code should not end the session")
	}

	c.OnVoiceClosed(testGuild, 4014, "disconnected")
	rec.waitFor(t, model.EventMusicStopped, 1)
	if eng.disconnectCount() != 1 || c.Registry().Len() != 0 {
		t.Fatalf("4014 should tear down the session")
	}
}

func TestFailedTrackSkippedOnAdvance(t *testing.T) {
	c, eng, rec := newTestController(t, Deps{GracePeriod: 50 * time.Millisecond})
	eng.failTitles = map[string]bool{"b": true}
	ctx := context.Background()
	a := testTrack("a")
	for _, tr := range []*model.Track{a, testTrack("b"), testTrack("c")} {
		if _, err := c.Play(ctx, testGuild, tr); err != nil {
			t.Fatalf("Play(%s) error = %v", tr.Title, err)
		}
	}

	c.OnTrackEnd(testGuild, a, "finished")
	snap := barrier(t, c)

	if got := eng.playedTitles(); len(got) != 2 || got[1] != "c" {
		t.Fatalf("engine played %v, want [a c]", got)
	}
	if snap.Current == nil || snap.Current.Title != "c" || snap.State != "playing" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if rec.count(model.EventPlaybackError) != 1 {
		t.Fatalf("playback_error events = %d, want 1", rec.count(model.EventPlaybackError))
	}

	time.Sleep(120 * time.Millisecond)
	barrier(t, c)
	if rec.count(model.EventQueueEmptyDisconnect) != 0 || eng.disconnectCount() != 0 {
		t.Fatalf("session disconnected while a playable track was queued")
	}
}

func TestLoopTrackFailureMovesOn(t *testing.T) {
	c, eng, _ := newTestController(t, Deps{})
	ctx := context.Background()
	a := testTrack("a")
	if _, err := c.Play(ctx, testGuild, a); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Play(ctx, testGuild, testTrack("b")); err != nil {
		t.Fatal(err)
	}
	if err := c.SetLoopMode(ctx, testGuild, model.LoopTrack); err != nil {
		t.Fatal(err)
	}

	eng.mu.Lock()
	eng.failTitles = map[string]bool{"a": true}
	eng.mu.Unlock()
	c.OnTrackEnd(testGuild, a, "finished")
	snap := barrier(t, c)

	if got := eng.playedTitles(); len(got) != 2 || got[1] != "b" {
		t.Fatalf("engine played %v, want [a b]", got)
	}
	if snap.Current == nil || snap.Current.Title != "b" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestAllQueuedTracksFailThenDisconnect(t *testing.T) {
	c, eng, rec := newTestController(t, Deps{GracePeriod: 30 * time.Millisecond})
	eng.failTitles = map[string]bool{"b": true, "c": true}
	ctx := context.Background()
	a := testTrack("a")
	for _, tr := range []*model.Track{a, testTrack("b"), testTrack("c")} {
		if _, err := c.Play(ctx, testGuild, tr); err != nil {
			t.Fatalf("Play(%s) error = %v", tr.Title, err)
		}
	}

	c.OnTrackEnd(testGuild, a, "finished")
	rec.waitFor(t, model.EventQueueEmptyDisconnect, 1)
	if n := rec.count(model.EventPlaybackError); n != 2 {
		t.Fatalf("playback_error events = %d, want 2", n)
	}
}

func TestPlayTracksKeepsOrder(t *testing.T) {
	c, eng, rec := newTestController(t, Deps{})
	eng.failTitles = map[string]bool{"p1": true}
	ctx := context.Background()

	res, err := c.PlayTracks(ctx, testGuild, []*model.Track{testTrack("p1"), testTrack("p2"), testTrack("p3"), testTrack("p4")})
	if err != nil {
		t.Fatalf("PlayTracks() error = %v", err)
	}
	if res.Queued || res.Track.Title != "p2" || res.Added != 3 {
		t.Fatalf("result = %+v, want p2 started with 3 added", res)
	}

	res, err = c.PlayTracks(ctx, testGuild, []*model.Track{testTrack("q1"), nil, testTrack("q2")})
	if err != nil {
		t.Fatalf("second PlayTracks() error = %v", err)
	}
	if !res.Queued || res.Position != 3 || res.Added != 2 {
		t.Fatalf("result = %+v, want queued at 3 with 2 added", res)
	}

	snap := barrier(t, c)
	var pending []string
	for _, tr := range snap.Pending {
		pending = append(pending, tr.Title)
	}
	want := []string{"p3", "p4", "q1", "q2"}
	if len(pending) != len(want) {
		t.Fatalf("pending = %v, want %v", pending, want)
	}
	for i := range want {
		if pending[i] != want[i] {
			t.Fatalf("pending = %v, want %v", pending, want)
		}
	}
	if rec.count(model.EventPlaybackError) != 1 {
		t.Errorf("unplayable playlist entry should be reported once")
	}

	if _, err := c.PlayTracks(ctx, testGuild, nil); !errors.Is(err, ErrNoResults) {
		t.Errorf("empty PlayTracks() error = %v", err)
	}
}

func TestSearchResults(t *testing.T) {
	c, _, _ := newTestController(t, Deps{})
	res, err := c.Search(context.Background(), "song", model.SourceSoundCloud)
	if err != nil || len(res.Tracks) != 1 || res.Tracks[0].Title != "song" {
		t.Fatalf("Search() = %+v, %v", res, err)
	}
	if _, err := c.Search(context.Background(), "nothing", model.SourceYouTube); !errors.Is(err, ErrNoResults) {
		t.Fatalf("Search(nothing) error = %v, want ErrNoResults", err)
	}
}

func TestLogsWrittenInOrder(t *testing.T) {
	prefs := NewMemoryPreferences()
	_ = prefs.SetLyrics(context.Background(), testGuild, true, "text-channel")
	logs := &logRecorder{}
	fetcher := fetcherFunc(func(ctx context.Context, title, artist string, durationMs int64) []lyrics.Line {
		return []lyrics.Line{{Timestamp: 0, Text: "l1"}, {Timestamp: 1, Text: "l2"}, {Timestamp: 2, Text: "l3"}}
	})

	c, eng, rec := newTestController(t, Deps{Lyrics: fetcher, Prefs: prefs, Logs: logs})
	c.SetLyricsTiming(2*time.Millisecond, 500*time.Millisecond)
	eng.setState(model.PlayerState{Connected: true, Playing: true})

	if _, err := c.Play(context.Background(), testGuild, testTrack("a")); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	rec.waitFor(t, model.EventLyricsLine, 1)
	eng.setState(model.PlayerState{Connected: true, Playing: true, PositionMs: 3000})
	rec.waitFor(t, model.EventLyricsLine, 3)
	// Close 等待排队的日志写完
	c.Close()

	got := logs.written()
	want := []string{playHistoryTable, "l1", "l2", "l3"}
	if len(got) != len(want) {
		t.Fatalf("rows = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rows = %v, want %v", got, want)
		}
	}
}
