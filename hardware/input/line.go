package input

import (
	"bufio"
	"io"
	"time"

	"github.com/temoto/kiosk/internal/types"
)

const LineSourceTag = "line"

// LineSource turns bytes from reader (serial keypad, terminal in raw mode, pipe)
// into key events, one per character. Newline is reported as KeyEnter.
type LineSource struct {
	r   *bufio.Reader
	tag string
}

var _ Source = new(LineSource)

func NewLineSource(r io.Reader, tag string) *LineSource {
	if tag == "" {
		tag = LineSourceTag
	}
	return &LineSource{r: bufio.NewReader(r), tag: tag}
}

func (self *LineSource) String() string { return self.tag }

func (self *LineSource) Read() (types.InputEvent, error) {
	for {
		r, _, err := self.r.ReadRune()
		if err != nil {
			return types.InputEvent{}, err
		}
		switch r {
		case '\r':
			continue
		case '\n':
			r = rune(KeyEnter)
		}
		return types.InputEvent{Source: self.tag, Key: types.InputKey(r), At: time.Now()}, nil
	}
}
