package kernel

import (
	"sync"

	"github.com/zhengguan/15410-sub000/defs"
)

// Console dimensions and default attribute for 80x25 VGA text mode.
const (
	ConsoleHeight = 25
	ConsoleWidth  = 80
	defaultColor  = 0x07
)

// Console_t is the 80x25 text-mode console: a kernel-owned
// cursor and color plus a character grid standing in for the VGA text
// buffer the real driver would write through. One goroutine at a time
// may hold mu, giving print its "console has its own lock" atomicity
//.
type Console_t struct {
	mu    sync.Mutex
	grid  [ConsoleHeight][ConsoleWidth]byte
	row   int
	col   int
	color int
}

// NewConsole returns a cleared console with the default color and the
// cursor at the origin.
func NewConsole() *Console_t {
	c := &Console_t{color: defaultColor}
	c.clear()
	return c
}

func (c *Console_t) clear() {
	for r := range c.grid {
		for col := range c.grid[r] {
			c.grid[r][col] = ' '
		}
	}
	c.row, c.col = 0, 0
}

// scrollUp shifts every row up by one, blanking the last row, mirroring
// console.c's scroll_up called when putbyte reaches the bottom row.
func (c *Console_t) scrollUp() {
	for r := 0; r < ConsoleHeight-1; r++ {
		c.grid[r] = c.grid[r+1]
	}
	for col := range c.grid[ConsoleHeight-1] {
		c.grid[ConsoleHeight-1][col] = ' '
	}
}

func (c *Console_t) newline() {
	if c.row >= ConsoleHeight-1 {
		c.scrollUp()
		c.row, c.col = ConsoleHeight-1, 0
	} else {
		c.row++
		c.col = 0
	}
}

// putbyte writes a single character, handling \n/\r/\b exactly as
// console.c's putbyte does, advancing the cursor and wrapping/scrolling
// at the edge of the grid.
func (c *Console_t) putbyte(ch byte) {
	switch ch {
	case '\n':
		c.newline()
	case '\r':
		c.col = 0
	case '\b':
		if c.col > 0 {
			c.col--
			c.grid[c.row][c.col] = ' '
		}
	default:
		c.grid[c.row][c.col] = ch
		if c.col >= ConsoleWidth-1 {
			c.newline()
		} else {
			c.col++
		}
	}
}

// Write implements fdops.Fdops_i.Write and the print() syscall's atomic
// bulk write: the whole buffer is written while mu is held, so two
// concurrent print() calls never interleave their characters.
func (c *Console_t) Write(src []uint8) (int, defs.Err_t) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range src {
		c.putbyte(ch)
	}
	return len(src), 0
}

// Read is not meaningful for the console; every console fd is write-only.
func (c *Console_t) Read(dst []uint8) (int, defs.Err_t) { return 0, -defs.EINVAL }

func (c *Console_t) Lseek(off int, whence int) (int, defs.Err_t) { return 0, -defs.EINVAL }
func (c *Console_t) Close() defs.Err_t                           { return 0 }
func (c *Console_t) Reopen() defs.Err_t                          { return 0 }

// SetTermColor implements set_term_color(color): color
// must fit in a byte, matching console.c's set_term_color bounds check.
func (c *Console_t) SetTermColor(color int) defs.Err_t {
	if color < 0x00 || color > 0xFF {
		return -defs.EINVAL
	}
	c.mu.Lock()
	c.color = color
	c.mu.Unlock()
	return 0
}

// SetCursorPos implements set_cursor_pos(row, col).
func (c *Console_t) SetCursorPos(row, col int) defs.Err_t {
	if row < 0 || row >= ConsoleHeight || col < 0 || col >= ConsoleWidth {
		return -defs.EINVAL
	}
	c.mu.Lock()
	c.row, c.col = row, col
	c.mu.Unlock()
	return 0
}

// GetCursorPos implements get_cursor_pos().
func (c *Console_t) GetCursorPos() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.row, c.col
}

// Snapshot returns a copy of the character grid, used by tests that
// assert on rendered console contents without reaching into mu.
func (c *Console_t) Snapshot() [ConsoleHeight][ConsoleWidth]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grid
}
