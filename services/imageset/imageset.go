// Package imageset renders the fixed ordered set of QC test patterns a
// run cycles through. Patterns are 4x6 at 300 DPI, written once as PNG
// into a working directory; the orchestrator consumes only their paths.
package imageset

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"printrig/services/orchestrator"
)

const (
	// 4x6 inches at 300 DPI.
	imageWidth  = 1800
	imageHeight = 1200
)

type pattern struct {
	file        string
	description string
	render      func(*image.NRGBA)
}

var patterns = []pattern{
	{file: "color_bars.png", description: "Color bars", render: renderColorBars},
	{file: "rgb_gradients.png", description: "RGB gradients", render: renderRGBGradients},
	{file: "grayscale_ramp.png", description: "Grayscale ramp", render: renderGrayscaleRamp},
}

// Set is the fixed ordered sequence of generated test images.
type Set struct {
	images []orchestrator.Image
}

// Generate renders every pattern into dir and returns the ordered set.
func Generate(dir string) (*Set, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}

	set := &Set{images: make([]orchestrator.Image, 0, len(patterns))}
	for _, p := range patterns {
		img := image.NewNRGBA(image.Rect(0, 0, imageWidth, imageHeight))
		p.render(img)

		path := filepath.Join(dir, p.file)
		if err := writePNG(path, img); err != nil {
			return nil, fmt.Errorf("render %s: %w", p.file, err)
		}
		set.images = append(set.images, orchestrator.Image{Path: path, Description: p.description})
	}
	return set, nil
}

// Len returns the number of images in the set.
func (s *Set) Len() int { return len(s.images) }

// At returns the image at index i.
func (s *Set) At(i int) orchestrator.Image { return s.images[i] }

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
