package sequence

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"

	"stillcast/internal/tasks"
)

var allowedFormats = map[string]struct{}{
	"jpeg": {},
	"png":  {},
	"bmp":  {},
}

var allowedExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".bmp":  {},
}

// probeImage verifies the bytes decode as JPEG, PNG, or BMP and returns the
// image dimensions without performing a full pixel decode.
func probeImage(data []byte, filename string) (int, int, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedExtensions[ext]; !ok {
		return 0, 0, fmt.Errorf("%w: extension %q", tasks.ErrUnsupportedFormat, ext)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", tasks.ErrUnsupportedFormat, err)
	}
	if _, ok := allowedFormats[format]; !ok {
		return 0, 0, fmt.Errorf("%w: %s", tasks.ErrUnsupportedFormat, format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, fmt.Errorf("%w: zero-sized image", tasks.ErrUnsupportedFormat)
	}
	return cfg.Width, cfg.Height, nil
}
