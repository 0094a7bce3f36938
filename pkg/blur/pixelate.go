// Package blur provides a reference privacy transform so the recorder runs
// without the external model. The real model plugs in behind the same
// contract: payload in, transformed payload out, frame identity untouched.
package blur

import (
	"fmt"
)

// Pixelate averages square blocks of a packed RGB24 frame in place of the
// original pixels. Cheap, deterministic, and destroys identifying detail.
type Pixelate struct {
	Width  int
	Height int
	Block  int
}

func NewPixelate(width, height, block int) *Pixelate {
	if block < 2 {
		block = 8
	}
	return &Pixelate{Width: width, Height: height, Block: block}
}

// Apply transforms a packed RGB24 payload. The input slice is modified and
// returned; the caller owns the buffer on both sides of the call.
func (p *Pixelate) Apply(payload []byte) ([]byte, error) {
	expected := p.Width * p.Height * 3
	if len(payload) != expected {
		return nil, fmt.Errorf("unexpected payload size %d, want %d (%dx%d rgb24)", len(payload), expected, p.Width, p.Height)
	}

	for by := 0; by < p.Height; by += p.Block {
		for bx := 0; bx < p.Width; bx += p.Block {
			p.averageBlock(payload, bx, by)
		}
	}
	return payload, nil
}

func (p *Pixelate) averageBlock(payload []byte, bx, by int) {
	maxX := min(bx+p.Block, p.Width)
	maxY := min(by+p.Block, p.Height)
	count := (maxX - bx) * (maxY - by)

	var r, g, b int
	for y := by; y < maxY; y++ {
		row := y * p.Width * 3
		for x := bx; x < maxX; x++ {
			off := row + x*3
			r += int(payload[off])
			g += int(payload[off+1])
			b += int(payload[off+2])
		}
	}

	ar, ag, ab := byte(r/count), byte(g/count), byte(b/count)
	for y := by; y < maxY; y++ {
		row := y * p.Width * 3
		for x := bx; x < maxX; x++ {
			off := row + x*3
			payload[off], payload[off+1], payload[off+2] = ar, ag, ab
		}
	}
}
