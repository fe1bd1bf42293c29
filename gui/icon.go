//go:build !nogui

package gui

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"

	"fyne.io/fyne/v2"
)

// iconResource draws the window icon: a red recording dot with a soft ring.
func iconResource() fyne.Resource {
	const size = 64
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	center := float64(size) / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dist := math.Hypot(float64(x)-center+0.5, float64(y)-center+0.5)
			switch {
			case dist < 12:
				img.Set(x, y, color.RGBA{230, 40, 40, 255})
			case dist < 22:
				t := (dist - 12) / 10
				img.Set(x, y, color.RGBA{230, uint8(40 + t*60), 40, uint8(255 * (1 - t))})
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return fyne.NewStaticResource("scribe.png", buf.Bytes())
}
