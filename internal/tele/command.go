package tele

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/kiosk/internal/preload"
	"github.com/temoto/kiosk/internal/state"
)

const (
	TaskNavigate = "navigate"
	TaskClear    = "clear"
	TaskReload   = "reload"
	TaskPreload  = "preload"
	TaskReport   = "report"

	responseTopicSuffix = "cr"
)

// Command is google.protobuf.Struct with fields:
// id (echoed in response), task, deadline (RFC3339, optional)
// and task arguments: request (navigate), reason (reload), key (preload).
func (self *tele) onCommandMessage(ctx context.Context, payload []byte) bool {
	cmd, err := UnmarshalStruct(payload)
	if err != nil {
		self.log.Errorf("tele command parse raw=%x err=%v", payload, err)
		return true
	}
	self.log.Debugf("tele command=%v", cmd)
	id := stringField(cmd, "id")

	if deadline := stringField(cmd, "deadline"); deadline != "" {
		t, err := time.Parse(time.RFC3339, deadline)
		if err != nil {
			self.commandReply(id, errors.NotValidf("deadline=%q", deadline))
			return true
		}
		if time.Now().After(t) {
			self.commandReply(id, errors.Timeoutf("deadline"))
			return true
		}
	}
	self.commandReply(id, self.dispatchCommand(ctx, cmd))
	return true
}

func (self *tele) dispatchCommand(ctx context.Context, cmd map[string]interface{}) error {
	g := state.GetGlobal(ctx)
	task := stringField(cmd, "task")
	switch task {
	case TaskNavigate:
		s := g.Selector.Navigate(stringField(cmd, "request"))
		self.log.Infof("tele navigate state=%s", s.String())
		return nil

	case TaskClear:
		g.Selector.Clear()
		return nil

	case TaskReload:
		reason := stringField(cmd, "reason")
		if reason == "" {
			reason = "tele"
		}
		return g.Reload(reason)

	case TaskPreload:
		key := stringField(cmd, "key")
		if key == "" {
			key = g.Config.Kiosk.Params["api_key"]
		}
		// progress is reported by observers, command only acknowledges start
		return g.PreloadAsync(key, preload.Observers{g.Progress, self})

	case TaskReport:
		if !self.sendState(g.Selector.Current(), true) {
			return errors.Errorf("send state failed")
		}
		return nil

	default:
		return errors.NotSupportedf("task=%q", task)
	}
}

func (self *tele) commandReply(id string, e error) {
	errText := ""
	if e != nil {
		errText = e.Error()
		self.log.Infof("tele command id=%s err=%v", id, e)
	}
	payload, err := marshalStruct(map[string]interface{}{
		"id":    id,
		"error": errText,
	})
	if err != nil {
		self.log.Infof("tele response payload err=%v", err)
		return
	}
	self.transport.SendCommandResponse(responseTopicSuffix, payload)
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
