package encoder

import (
	"fmt"
	"os"
	"time"

	"github.com/disintegration/imaging"
)

// frameRenderer decodes image files into raw BGR24 frames at the task
// resolution. It caches the last rendered frame keyed by file path and
// modification time, so a steady stream costs one decode per switch rather
// than one per tick while a re-uploaded file is picked up on the next tick.
type frameRenderer struct {
	width   int
	height  int
	path    string
	modTime time.Time
	raw     []byte
}

func newFrameRenderer(width, height int) *frameRenderer {
	return &frameRenderer{width: width, height: height}
}

func (r *frameRenderer) render(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat frame %s: %w", path, err)
	}
	if path == r.path && info.ModTime().Equal(r.modTime) && r.raw != nil {
		return r.raw, nil
	}

	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", path, err)
	}
	if img.Bounds().Dx() != r.width || img.Bounds().Dy() != r.height {
		img = imaging.Resize(img, r.width, r.height, imaging.Lanczos)
	}

	nrgba := imaging.Clone(img)
	raw := make([]byte, r.width*r.height*3)
	for y := 0; y < r.height; y++ {
		src := nrgba.Pix[y*nrgba.Stride:]
		dst := raw[y*r.width*3:]
		for x := 0; x < r.width; x++ {
			dst[x*3+0] = src[x*4+2] // B
			dst[x*3+1] = src[x*4+1] // G
			dst[x*3+2] = src[x*4+0] // R
		}
	}

	r.path = path
	r.modTime = info.ModTime()
	r.raw = raw
	return raw, nil
}
