package capture

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/privstream/privrec/internal/modules/config"
	"github.com/privstream/privrec/pkg/pool"
)

// FFmpegSource decodes RTSP into fixed-size raw RGB24 frames by shelling
// out to ffmpeg and reading its stdout. Frame buffers come from the shared
// pool and travel down the pipeline with the frame.
type FFmpegSource struct {
	binary    string
	width     int
	height    int
	frameSize int
	bp        *pool.BytesPool
}

func NewFFmpegSource(cfg *config.Config, bp *pool.BytesPool) *FFmpegSource {
	return &FFmpegSource{
		binary:    cfg.FFmpegPath,
		width:     cfg.FrameWidth,
		height:    cfg.FrameHeight,
		frameSize: cfg.FrameSize(),
		bp:        bp,
	}
}

func (f *FFmpegSource) Connect(ctx context.Context, url string) (Conn, error) {
	cmd := exec.CommandContext(ctx, f.binary,
		"-rtsp_transport", "tcp",
		"-i", url,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", f.width, f.height),
		"-an",
		"-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	c := &ffmpegConn{
		cmd:    cmd,
		frames: make(chan []byte, 4),
		errs:   make(chan error, 1),
	}
	go c.read(stdout, f.bp, f.frameSize)
	return c, nil
}

type ffmpegConn struct {
	cmd    *exec.Cmd
	frames chan []byte
	errs   chan error
}

func (c *ffmpegConn) read(stdout io.Reader, bp *pool.BytesPool, frameSize int) {
	defer close(c.frames)
	for {
		buf := bp.GetBytes()[:frameSize]
		if _, err := io.ReadFull(stdout, buf); err != nil {
			bp.PutBytes(buf)
			c.errs <- err
			return
		}
		c.frames <- buf
	}
}

func (c *ffmpegConn) ReadFrame(timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case buf, ok := <-c.frames:
		if !ok {
			select {
			case err := <-c.errs:
				return nil, err
			default:
				return nil, io.EOF
			}
		}
		return buf, nil
	case <-timer.C:
		return nil, ErrReadTimeout
	}
}

func (c *ffmpegConn) Close() error {
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	// drain so the reader goroutine can exit
	go func() {
		for range c.frames {
		}
	}()
	return c.cmd.Wait()
}
