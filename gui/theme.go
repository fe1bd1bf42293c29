//go:build !nogui

package gui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

// scribeTheme pins the default theme to one variant and softens the
// background and text colours of the dark one.
type scribeTheme struct {
	variant fyne.ThemeVariant
}

func newTheme(dark bool) fyne.Theme {
	if dark {
		return &scribeTheme{variant: theme.VariantDark}
	}
	return &scribeTheme{variant: theme.VariantLight}
}

func (t *scribeTheme) Color(name fyne.ThemeColorName, _ fyne.ThemeVariant) color.Color {
	if t.variant == theme.VariantDark {
		switch name {
		case theme.ColorNameBackground:
			return color.RGBA{18, 18, 18, 255}
		case theme.ColorNameForeground:
			return color.RGBA{200, 200, 200, 255}
		}
	}
	return theme.DefaultTheme().Color(name, t.variant)
}

func (t *scribeTheme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

func (t *scribeTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

func (t *scribeTheme) Size(name fyne.ThemeSizeName) float32 {
	return theme.DefaultTheme().Size(name)
}
