package capture

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/privstream/privrec/internal/types"
	"github.com/privstream/privrec/utils"
)

type Status string

const Disconnected Status = "disconnected"
const Connecting Status = "connecting"
const Streaming Status = "streaming"
const Backoff Status = "backoff"
const Failed Status = "failed"

var disconnectedPtr = utils.Ptr(Disconnected)
var connectingPtr = utils.Ptr(Connecting)
var streamingPtr = utils.Ptr(Streaming)
var backoffPtr = utils.Ptr(Backoff)
var failedPtr = utils.Ptr(Failed)

// StreamState is owned by the stream's capture goroutine; everything other
// goroutines read goes through atomics, so the stats path needs no lock.
type StreamState struct {
	Spec types.StreamSpec

	status     atomic.Pointer[Status]
	retryCount atomic.Int64
	received   atomic.Int64
	lost       atomic.Int64
	errorCount atomic.Int64
	lastFrame  atomic.Int64 // unix nanos of last received frame

	seq    uint64 // touched only by the capture goroutine
	cancel context.CancelFunc
}

func newStreamState(spec types.StreamSpec, cancel context.CancelFunc) *StreamState {
	st := &StreamState{Spec: spec, cancel: cancel}
	st.status.Store(disconnectedPtr)
	return st
}

func (st *StreamState) Status() Status {
	if p := st.status.Load(); p != nil {
		return *p
	}
	return Disconnected
}

func (st *StreamState) RetryCount() int64 {
	return st.retryCount.Load()
}

func (st *StreamState) Received() int64 {
	return st.received.Load()
}

func (st *StreamState) Lost() int64 {
	return st.lost.Load()
}

func (st *StreamState) Errors() int64 {
	return st.errorCount.Load()
}

func (st *StreamState) LastFrameTime() time.Time {
	ns := st.lastFrame.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// StreamInfo is the JSON shape returned by the stream controller.
type StreamInfo struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	TargetFPS     int    `json:"target_fps"`
	Status        Status `json:"status"`
	RetryCount    int64  `json:"retry_count"`
	Received      int64  `json:"received"`
	Lost          int64  `json:"lost"`
	Errors        int64  `json:"errors"`
	LastFrameUnix int64  `json:"last_frame_unix,omitempty"`
}

func (st *StreamState) Info() *StreamInfo {
	info := &StreamInfo{
		ID:         st.Spec.ID,
		URL:        st.Spec.URL,
		TargetFPS:  st.Spec.TargetFPS,
		Status:     st.Status(),
		RetryCount: st.RetryCount(),
		Received:   st.Received(),
		Lost:       st.Lost(),
		Errors:     st.Errors(),
	}
	if t := st.LastFrameTime(); !t.IsZero() {
		info.LastFrameUnix = t.Unix()
	}
	return info
}
