package port

import (
	"sync/atomic"

	"golang.org/x/term"
)

// -1 = unchecked, 0 = no, 1 = yes
var stdioIsTerminal = [3]atomic.Int32{}

func init() {
	for i := range stdioIsTerminal {
		stdioIsTerminal[i].Store(-1)
	}
}

// IsTerminal reports whether fd is attached to an interactive terminal.
// Results for the three standard descriptors are cached.
func IsTerminal(fd int) bool {
	if fd < 0 {
		return false
	}
	if fd >= len(stdioIsTerminal) {
		return term.IsTerminal(fd)
	}

	cached := &stdioIsTerminal[fd]
	if v := cached.Load(); v >= 0 {
		return v == 1
	}
	result := term.IsTerminal(fd)
	if result {
		cached.Store(1)
	} else {
		cached.Store(0)
	}
	return result
}
