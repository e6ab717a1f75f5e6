package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Display renders a redrawable block ("<spinner> [hh:mm:ss]" followed by a
// multi-line message) at the bottom of a terminal. Permanent lines and log
// output written through the display are printed above the block.
//
// On a non-terminal writer the block is only printed once, by Finish.
type Display struct {
	mu          sync.Mutex
	w           io.Writer
	interactive bool
	clock       func() time.Time
	start       time.Time

	message  string
	frame    int
	drawn    int
	finished bool
}

// New returns a display writing to w. Redrawing is enabled when w is a terminal.
func New(w io.Writer) *Display {
	interactive := false
	if f, ok := w.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	return newDisplay(w, interactive, time.Now)
}

func newDisplay(w io.Writer, interactive bool, clock func() time.Time) *Display {
	return &Display{w: w, interactive: interactive, clock: clock, start: clock()}
}

// Interactive reports whether the display redraws in place.
func (d *Display) Interactive() bool { return d.interactive }

// Update replaces the message and redraws the block.
func (d *Display) Update(message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.message = message
	if d.finished || !d.interactive {
		return
	}
	d.clear()
	d.draw()
}

// Println prints line above the block.
func (d *Display) Println(line string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.above([]byte(line + "\n"))
}

// Write prints p above the block, so a logger can write through the display.
func (d *Display) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.above(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Finish leaves the last block on screen. Later writes go straight to the writer.
func (d *Display) Finish() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.finished {
		return
	}
	d.clear()
	d.draw()
	d.finished = true
	d.drawn = 0
}

func (d *Display) above(p []byte) error {
	if d.finished || !d.interactive {
		_, err := d.w.Write(p)
		return err
	}
	d.clear()
	if _, err := d.w.Write(p); err != nil {
		return err
	}
	d.draw()
	return nil
}

// clear moves the cursor to the first line of the block and erases to the
// end of the screen.
func (d *Display) clear() {
	if d.drawn == 0 {
		return
	}
	fmt.Fprintf(d.w, "\x1b[%dA\r\x1b[J", d.drawn)
	d.drawn = 0
}

func (d *Display) draw() {
	if d.message == "" {
		return
	}
	header := fmt.Sprintf("%s [%s]", spinnerFrames[d.frame%len(spinnerFrames)], formatElapsed(d.clock().Sub(d.start)))
	d.frame++
	block := header + "\n" + d.message + "\n"
	io.WriteString(d.w, block)
	d.drawn = strings.Count(block, "\n")
}

// formatElapsed renders d as hh:mm:ss.
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s/60)%60, s%60)
}
