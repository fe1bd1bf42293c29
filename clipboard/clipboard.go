// Package clipboard copies the transcript for the terminal front-end and
// the doctor check. The window front-end uses fyne's own clipboard.
package clipboard

import (
	"errors"
	"fmt"

	cb "github.com/atotto/clipboard"
)

var ErrUnsupported = errors.New("no clipboard utility available (install xclip, xsel or wl-clipboard)")

func Available() bool { return !cb.Unsupported }

func Read() (string, error) {
	if cb.Unsupported {
		return "", ErrUnsupported
	}
	return cb.ReadAll()
}

// Copy replaces the clipboard contents. Empty text is rejected so a stray
// copy of an empty transcript does not wipe the clipboard.
func Copy(text string) error {
	if cb.Unsupported {
		return ErrUnsupported
	}
	if text == "" {
		return errors.New("nothing to copy")
	}
	if err := cb.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard write: %w", err)
	}
	return nil
}
