package input

import (
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/inputevent-go"
	"github.com/temoto/kiosk/internal/types"
	"golang.org/x/sys/unix"
)

const DevInputEventTag = "dev-input-event"

const (
	evKey     = 0x01
	evioCGrab = 0x40044590 // _IOW('E', 0x90, int)
)

// Linux input scan codes to characters, top row digits and numpad.
var devInputKeymap = map[uint16]types.InputKey{
	1: KeyEscape, 14: KeyBackspace, 28: KeyEnter, 96: KeyEnter,
	2: '1', 3: '2', 4: '3', 5: '4', 6: '5', 7: '6', 8: '7', 9: '8', 10: '9', 11: '0',
	79: '1', 80: '2', 81: '3', 75: '4', 76: '5', 77: '6', 71: '7', 72: '8', 73: '9', 82: '0',
	55: '*', 74: '-', 78: '+', 83: '.', 98: '/',
	19: 'r', 63: KeyF5,
}

type DevInputEventSource struct {
	f *os.File
}

// compile-time interface compliance test
var _ Source = new(DevInputEventSource)

func (self *DevInputEventSource) String() string { return DevInputEventTag }

// NewDevInputEventSource opens evdev device, grab=true takes it exclusively
// so keypresses don't leak to console.
func NewDevInputEventSource(device string, grab bool) (*DevInputEventSource, error) {
	f, err := os.Open(device)
	if err != nil {
		return nil, errors.Annotatef(err, "input device=%s", device)
	}
	if grab {
		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), evioCGrab, 1); errno != 0 {
			f.Close()
			return nil, errors.Annotatef(errno, "input device=%s EVIOCGRAB", device)
		}
	}
	return &DevInputEventSource{f: f}, nil
}

func (self *DevInputEventSource) Close() error { return self.f.Close() }

func (self *DevInputEventSource) Read() (types.InputEvent, error) {
	for {
		ie, err := inputevent.ReadOne(self.f)
		if err != nil {
			return types.InputEvent{}, err
		}
		if ie.Type != evKey || ie.Value != int32(inputevent.KeyStateDown) {
			continue
		}
		key, ok := devInputKeymap[ie.Code]
		if !ok {
			continue
		}
		return types.InputEvent{
			Source: DevInputEventTag,
			Key:    key,
			At:     time.Unix(int64(ie.Time.Sec), int64(ie.Time.Usec)*int64(time.Microsecond)),
		}, nil
	}
}
