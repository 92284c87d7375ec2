package monitor

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBroadcasterFansOut(t *testing.T) {
	b := NewBroadcaster()
	l1 := b.Subscribe()
	l2 := b.Subscribe()
	assert.Equal(t, 2, b.ListenerCount())

	frame := []int16{1, 2, 3}
	b.WriteFrame(frame)
	assert.Equal(t, frame, <-l1.C)
	assert.Equal(t, frame, <-l2.C)
}

func TestBroadcasterDropsForSlowListener(t *testing.T) {
	b := NewBroadcaster()
	slow := b.Subscribe()

	for i := 0; i < listenerBuffer+50; i++ {
		b.WriteFrame([]int16{int16(i)})
	}
	assert.Len(t, slow.C, listenerBuffer)
	assert.Equal(t, []int16{0}, <-slow.C, "oldest buffered frame is kept, newest dropped")
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := NewBroadcaster()
	l := b.Subscribe()

	b.Unsubscribe(l)
	b.Unsubscribe(l)
	assert.Equal(t, 0, b.ListenerCount())

	select {
	case <-l.Done():
	default:
		t.Fatal("listener not signalled")
	}

	b.WriteFrame([]int16{1})
	assert.Len(t, l.C, 0)
}

func TestWebRTCHandlerRejectsBadOffer(t *testing.T) {
	h := NewWebRTCHandler(NewBroadcaster())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/monitor/offer", strings.NewReader("not json"))

	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, h.PeerCount())
}
