package tiling

import (
	"errors"
	"fmt"
	"io"

	"github.com/eiannone/keyboard"
)

// ErrAborted is returned when the operator cancels instead of confirming.
var ErrAborted = errors.New("aborted by operator")

// KeyReader reads one key press.
type KeyReader func() (rune, keyboard.Key, error)

// WaitForOperator prints prompt to w and blocks until a key is pressed.
// Esc and Ctrl+C abort. A nil read uses the terminal.
func WaitForOperator(w io.Writer, prompt string, read KeyReader) error {
	if read == nil {
		read = keyboard.GetSingleKey
	}
	fmt.Fprintf(w, "%s\nPress any key to continue, Esc to abort... ", prompt)

	_, key, err := read()
	fmt.Fprintln(w)
	if err != nil {
		return fmt.Errorf("failed to read key: %w", err)
	}
	if key == keyboard.KeyEsc || key == keyboard.KeyCtrlC {
		return ErrAborted
	}
	return nil
}
