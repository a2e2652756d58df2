package httptransport_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convconv/internal/entity"
)

func dialWS(t *testing.T, e *testEnv) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(e.handler)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev map[string]any
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestWS_SubscribeReceivesJobEvents(t *testing.T) {
	e := newEnv(t, 0)
	job, err := e.repo.Create(context.Background(), "in.mov", "out.mp4", "")
	require.NoError(t, err)
	conn := dialWS(t, e)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "jobId": job.ID}))
	ack := readEvent(t, conn)
	assert.Equal(t, "subscribed", ack["type"])
	assert.Equal(t, job.ID, ack["jobId"])

	require.Eventually(t, func() bool { return e.events.SubscriberCount(job.ID) == 1 }, 5*time.Second, 10*time.Millisecond)

	e.events.BroadcastProgress(job.ID, entity.ProgressSample{Percent: 55, Time: "00:00:05"})
	e.events.BroadcastProgress("someone-else", entity.ProgressSample{Percent: 1})
	e.events.BroadcastComplete(job.ID, "/api/download/"+job.ID)

	progress := readEvent(t, conn)
	assert.Equal(t, "progress", progress["type"])
	assert.Equal(t, 55.0, progress["data"].(map[string]any)["percent"])

	complete := readEvent(t, conn)
	assert.Equal(t, "complete", complete["type"])
	assert.Equal(t, "/api/download/"+job.ID, complete["data"].(map[string]any)["downloadUrl"])
}

func TestWS_SubscribeUnknownJob(t *testing.T) {
	e := newEnv(t, 0)
	conn := dialWS(t, e)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "jobId": "ghost"}))
	ev := readEvent(t, conn)
	assert.Equal(t, "error", ev["type"])
	assert.Equal(t, "ghost", ev["jobId"])
	assert.Equal(t, "Job not found", ev["data"].(map[string]any)["error"])
	assert.Zero(t, e.events.SubscriberCount("ghost"))
}

func TestWS_UnsubscribeAndDisconnect(t *testing.T) {
	e := newEnv(t, 0)
	ctx := context.Background()
	a, _ := e.repo.Create(ctx, "a.mov", "a.mp4", "")
	b, _ := e.repo.Create(ctx, "b.mov", "b.mp4", "")
	conn := dialWS(t, e)

	for _, id := range []string{a.ID, b.ID} {
		require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "jobId": id}))
		assert.Equal(t, "subscribed", readEvent(t, conn)["type"])
	}
	require.Eventually(t, func() bool { return e.events.Jobs() == 2 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "unsubscribe", "jobId": a.ID}))
	require.Eventually(t, func() bool { return e.events.SubscriberCount(a.ID) == 0 }, 5*time.Second, 10*time.Millisecond)

	// malformed frames are ignored and keep the connection open
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	e.events.BroadcastError(b.ID, "cancelled")
	assert.Equal(t, "error", readEvent(t, conn)["type"])

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return e.events.Jobs() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestWS_RejectsPlainHTTP(t *testing.T) {
	e := newEnv(t, 0)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWS_StalledSubscriberDoesNotBlockOtherJobs(t *testing.T) {
	e := newEnv(t, 0)
	ctx := context.Background()
	a, _ := e.repo.Create(ctx, "a.mov", "a.mp4", "")
	b, _ := e.repo.Create(ctx, "b.mov", "b.mp4", "")
	conn := dialWS(t, e)

	for _, id := range []string{a.ID, b.ID} {
		require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "jobId": id}))
		assert.Equal(t, "subscribed", readEvent(t, conn)["type"])
	}
	require.Eventually(t, func() bool { return e.events.Jobs() == 2 }, 5*time.Second, 10*time.Millisecond)

	// the client never reads again
	big := strings.Repeat("x", 64<<10)
	for i := 0; i < 5000 && e.events.SubscriberCount(a.ID) > 0; i++ {
		e.events.BroadcastProgress(a.ID, entity.ProgressSample{Percent: i % 100, Bitrate: big})

		start := time.Now()
		e.events.BroadcastProgress(b.ID, entity.ProgressSample{Percent: 1})
		require.Less(t, time.Since(start), time.Second, "broadcast to job B blocked at frame %d", i)
	}

	assert.Zero(t, e.events.SubscriberCount(a.ID))
	assert.Zero(t, e.events.SubscriberCount(b.ID))
}

func TestWS_SubscribeFinishedJobReplaysTerminalEvent(t *testing.T) {
	e := newEnv(t, 0)
	ctx := context.Background()
	done, _ := e.repo.Create(ctx, "a.mov", "a.mp4", "")
	_, _ = e.repo.Start(ctx, done.ID)
	_, err := e.repo.Complete(ctx, done.ID, "/api/download/"+done.ID)
	require.NoError(t, err)
	failed, _ := e.repo.Create(ctx, "b.mov", "b.mp4", "")
	_, _ = e.repo.Start(ctx, failed.ID)
	_, err = e.repo.Fail(ctx, failed.ID, "FFmpeg exited with code 1\n")
	require.NoError(t, err)
	conn := dialWS(t, e)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "jobId": done.ID}))
	assert.Equal(t, "subscribed", readEvent(t, conn)["type"])
	ev := readEvent(t, conn)
	assert.Equal(t, "complete", ev["type"])
	assert.Equal(t, "/api/download/"+done.ID, ev["data"].(map[string]any)["downloadUrl"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "jobId": failed.ID}))
	assert.Equal(t, "subscribed", readEvent(t, conn)["type"])
	ev = readEvent(t, conn)
	assert.Equal(t, "error", ev["type"])
	assert.Equal(t, "FFmpeg exited with code 1\n", ev["data"].(map[string]any)["error"])
}
