package imageset

import (
	"image"
	"image/color"
)

// Standard color bars, white through black.
var barColors = []color.NRGBA{
	{255, 255, 255, 255},
	{255, 255, 0, 255},
	{0, 255, 255, 255},
	{0, 255, 0, 255},
	{255, 0, 255, 255},
	{255, 0, 0, 255},
	{0, 0, 255, 255},
	{0, 0, 0, 255},
}

func renderColorBars(img *image.NRGBA) {
	b := img.Bounds()
	barWidth := b.Dx() / len(barColors)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := (x - b.Min.X) / barWidth
			if i >= len(barColors) {
				i = len(barColors) - 1
			}
			img.SetNRGBA(x, y, barColors[i])
		}
	}
}

// Three horizontal bands, each ramping one primary from black to full.
func renderRGBGradients(img *image.NRGBA) {
	b := img.Bounds()
	bandHeight := b.Dy() / 3
	for y := b.Min.Y; y < b.Max.Y; y++ {
		band := (y - b.Min.Y) / bandHeight
		if band > 2 {
			band = 2
		}
		for x := b.Min.X; x < b.Max.X; x++ {
			v := uint8((x - b.Min.X) * 255 / (b.Dx() - 1))
			var c color.NRGBA
			switch band {
			case 0:
				c = color.NRGBA{R: v, A: 255}
			case 1:
				c = color.NRGBA{G: v, A: 255}
			default:
				c = color.NRGBA{B: v, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
}

func renderGrayscaleRamp(img *image.NRGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := uint8((x - b.Min.X) * 255 / (b.Dx() - 1))
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
}
