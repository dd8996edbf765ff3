package assets

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// DefaultPreviewWidth is the pixel width of derived preview images.
const DefaultPreviewWidth = 480

// MakePreview derives a small preview PNG from a full-size render. Height is
// computed from the source aspect ratio. A width of zero uses the default.
func MakePreview(data []byte, width int) ([]byte, error) {
	if width <= 0 {
		width = DefaultPreviewWidth
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= width {
		// Already small enough, re-encode as-is.
		width = bounds.Dx()
	}

	// Height 0 preserves the aspect ratio.
	thumb := imaging.Resize(img, width, 0, imaging.Lanczos)

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, thumb, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return buf.Bytes(), nil
}
