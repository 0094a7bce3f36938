package capture

import (
	"context"
	"fmt"
	"time"
)

// ErrReadTimeout is the transient no-frame-yet signal. The capture loop
// retries the read without tearing the connection down.
var ErrReadTimeout = fmt.Errorf("frame read timed out")

// Source establishes connections to configured stream descriptors. The
// decode primitives behind it are an external concern; this is the whole
// surface the pipeline relies on.
type Source interface {
	Connect(ctx context.Context, url string) (Conn, error)
}

// Conn is one live stream connection producing decoded frame payloads.
// ReadFrame returns ErrReadTimeout when no frame arrived in time, io.EOF
// when the stream ended, or another error on connection failure.
type Conn interface {
	ReadFrame(timeout time.Duration) ([]byte, error)
	Close() error
}
