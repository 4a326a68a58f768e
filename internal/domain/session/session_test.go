package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uibridge/cdpgate/internal/infrastructure/logging"
	"github.com/uibridge/cdpgate/internal/infrastructure/monitoring"
	"github.com/uibridge/cdpgate/internal/shared/types"
	"github.com/uibridge/cdpgate/internal/wire"
)

type recordingUI struct {
	mu       sync.Mutex
	commands []json.RawMessage
}

func (r *recordingUI) DeliverInboundCommand(_ types.PageID, payload json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, payload)
}

func (r *recordingUI) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.commands)
}

func (r *recordingUI) notices() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.commands {
		if bytes.Equal(c, DisconnectNotice) {
			n++
		}
	}
	return n
}

type recordingSink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (r *recordingSink) DispatchOutbound(_ types.PageID, frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *recordingSink) frame(i int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames[i]
}

func newTestSession(interval time.Duration, ui *recordingUI, sink *recordingSink) *Session {
	metrics := monitoring.NewMetricsWith(prometheus.NewRegistry())
	return New("View#1", interval, ui, sink, logging.Nop(), metrics)
}

func decodeBatch(t *testing.T, frame []byte) []wire.Request {
	t.Helper()
	var batch []wire.Request
	require.NoError(t, json.Unmarshal(frame, &batch))
	return batch
}

func TestSendRequest_BatchCoalescing(t *testing.T) {
	ui := &recordingUI{}
	sink := &recordingSink{}
	s := newTestSession(20*time.Millisecond, ui, sink)
	defer s.Close()

	s.SendRequest(json.RawMessage(`"A"`), nil)
	s.SendRequest(json.RawMessage(`"B"`), nil)

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)

	batch := decodeBatch(t, sink.frame(0))
	require.Len(t, batch, 2)
	assert.Equal(t, json.RawMessage(`"A"`), batch[0].Payload)
	assert.Equal(t, json.RawMessage(`"B"`), batch[1].Payload)

	// Both were fire-and-forget, so neither carries a correlation id.
	assert.False(t, batch[0].ID.Valid)
	assert.False(t, batch[1].ID.Valid)

	// Nothing else arrives after the single flush.
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, sink.count())
}

func TestSendRequest_SeparateIntervalsSeparateFrames(t *testing.T) {
	ui := &recordingUI{}
	sink := &recordingSink{}
	s := newTestSession(15*time.Millisecond, ui, sink)
	defer s.Close()

	s.SendRequest(json.RawMessage(`"A"`), nil)
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)

	s.SendRequest(json.RawMessage(`"B"`), nil)
	require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, json.RawMessage(`"A"`), decodeBatch(t, sink.frame(0))[0].Payload)
	assert.Equal(t, json.RawMessage(`"B"`), decodeBatch(t, sink.frame(1))[0].Payload)
}

func TestSendRequest_IDsMonotonicFromOne(t *testing.T) {
	ui := &recordingUI{}
	sink := &recordingSink{}
	s := newTestSession(10*time.Millisecond, ui, sink)
	defer s.Close()

	cb := func(json.RawMessage) {}
	s.SendRequest(json.RawMessage(`"a"`), cb)
	s.SendRequest(json.RawMessage(`"b"`), nil) // consumes an id even without a callback
	s.SendRequest(json.RawMessage(`"c"`), cb)

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)

	batch := decodeBatch(t, sink.frame(0))
	require.Len(t, batch, 3)
	assert.Equal(t, int64(1), batch[0].ID.Int64)
	assert.False(t, batch[1].ID.Valid)
	assert.Equal(t, int64(3), batch[2].ID.Int64)
}

func TestSendRequest_ConcurrentIDsUnique(t *testing.T) {
	ui := &recordingUI{}
	sink := &recordingSink{}
	s := newTestSession(time.Hour, ui, sink)
	defer s.Close()

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.SendRequest(json.RawMessage(`{}`), func(json.RawMessage) {})
			}
		}()
	}
	wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, types.RequestID(1000), s.nextID)
	assert.Len(t, s.pending, 1000)
	assert.Len(t, s.queue, 1000)
	seen := make(map[int64]bool)
	for _, req := range s.queue {
		require.True(t, req.ID.Valid)
		require.False(t, seen[req.ID.Int64], "id %d issued twice", req.ID.Int64)
		seen[req.ID.Int64] = true
	}
}

func TestHandleFrame_ResponseFiresCallbackOnce(t *testing.T) {
	ui := &recordingUI{}
	sink := &recordingSink{}
	s := newTestSession(time.Hour, ui, sink)
	defer s.Close()

	var mu sync.Mutex
	var results []string
	for i := 1; i <= 7; i++ {
		var cb Callback
		if i == 7 {
			cb = func(result json.RawMessage) {
				mu.Lock()
				defer mu.Unlock()
				results = append(results, string(result))
			}
		}
		s.SendRequest(json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)), cb)
	}

	s.HandleFrame([]byte(`{"id":7,"result":"ok"}`))
	// A second identical response is ignored, never fired twice.
	s.HandleFrame([]byte(`{"id":7,"result":"ok"}`))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, 1)
	assert.Equal(t, `"ok"`, results[0])
}

func TestHandleFrame_UnknownIDIgnored(t *testing.T) {
	ui := &recordingUI{}
	sink := &recordingSink{}
	s := newTestSession(time.Hour, ui, sink)
	defer s.Close()

	fired := false
	s.SendRequest(json.RawMessage(`{}`), func(json.RawMessage) { fired = true })

	s.HandleFrame([]byte(`{"id":99,"result":"stale"}`))

	assert.False(t, fired)
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.pending, 1)
}

func TestHandleFrame_CommandForwardedToUI(t *testing.T) {
	ui := &recordingUI{}
	sink := &recordingSink{}
	s := newTestSession(time.Hour, ui, sink)
	defer s.Close()

	command := []byte(`{"id":1,"method":"Runtime.evaluate","params":{"expression":"1+1"}}`)
	s.HandleFrame(command)

	require.Equal(t, 1, ui.count())
	assert.JSONEq(t, string(command), string(ui.commands[0]))
	assert.Equal(t, 0, sink.count())
}

func TestClose_DropsPendingAndQueued(t *testing.T) {
	ui := &recordingUI{}
	sink := &recordingSink{}
	s := newTestSession(time.Hour, ui, sink)

	invoked := 0
	for i := 0; i < 3; i++ {
		s.SendRequest(json.RawMessage(`{}`), func(json.RawMessage) { invoked++ })
	}
	s.SendRequest(json.RawMessage(`"x"`), nil)
	s.SendRequest(json.RawMessage(`"y"`), nil)

	s.Close()

	// No frame left, the three callbacks never fired, one notice delivered.
	assert.Equal(t, 0, sink.count())
	assert.Equal(t, 0, invoked)
	assert.Equal(t, 1, ui.notices())

	// No late flush either.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, sink.count())
}

func TestClose_Idempotent(t *testing.T) {
	ui := &recordingUI{}
	sink := &recordingSink{}
	s := newTestSession(time.Hour, ui, sink)

	s.Close()
	s.Close()
	s.Close()

	assert.Equal(t, 1, ui.notices())
}

func TestClose_RacingFlushEmitsNothing(t *testing.T) {
	ui := &recordingUI{}
	sink := &recordingSink{}
	s := newTestSession(25*time.Millisecond, ui, sink)

	s.SendRequest(json.RawMessage(`"late"`), nil)
	s.Close()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, sink.count())
}

func TestSendRequest_AfterCloseDropped(t *testing.T) {
	ui := &recordingUI{}
	sink := &recordingSink{}
	s := newTestSession(10*time.Millisecond, ui, sink)
	s.Close()

	s.SendRequest(json.RawMessage(`"late"`), func(json.RawMessage) { t.Error("callback fired on closed session") })

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, sink.count())
	assert.Equal(t, 1, ui.notices())
}

func TestRemoteDisconnected_DiscardsQueueKeepsPending(t *testing.T) {
	ui := &recordingUI{}
	sink := &recordingSink{}
	s := newTestSession(time.Hour, ui, sink)
	defer s.Close()

	var result string
	s.SendRequest(json.RawMessage(`{}`), func(r json.RawMessage) { result = string(r) })

	s.RemoteDisconnected()
	assert.Equal(t, 1, ui.notices())

	// The queue is gone but the correlation survives a reconnect.
	s.mu.Lock()
	queued := len(s.queue)
	pending := len(s.pending)
	s.mu.Unlock()
	assert.Equal(t, 0, queued)
	assert.Equal(t, 1, pending)

	s.HandleFrame([]byte(`{"id":1,"result":"still here"}`))
	assert.Equal(t, `"still here"`, result)
}

func TestRemoteDisconnected_ArmedTimerFlushesNothing(t *testing.T) {
	ui := &recordingUI{}
	sink := &recordingSink{}
	s := newTestSession(20*time.Millisecond, ui, sink)
	defer s.Close()

	s.SendRequest(json.RawMessage(`"doomed"`), nil)
	s.RemoteDisconnected()

	// Timer fires on an empty queue and emits nothing.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, sink.count())
}

func TestCallback_MayReenterSendRequest(t *testing.T) {
	ui := &recordingUI{}
	sink := &recordingSink{}
	s := newTestSession(10*time.Millisecond, ui, sink)
	defer s.Close()

	s.SendRequest(json.RawMessage(`"first"`), func(json.RawMessage) {
		s.SendRequest(json.RawMessage(`"second"`), nil)
	})

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
	s.HandleFrame([]byte(`{"id":1,"result":null}`))

	require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, json.RawMessage(`"second"`), decodeBatch(t, sink.frame(1))[0].Payload)
}
