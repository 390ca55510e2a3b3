package tele

import (
	"context"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/kiosk/internal/preload"
	"github.com/temoto/kiosk/internal/selector"
	"github.com/temoto/kiosk/log2"
	tele_api "github.com/temoto/kiosk/tele"
	tele_config "github.com/temoto/kiosk/tele/config"
)

const logMsgDisabled = "tele disabled"

// Tele contract:
// - Init() fails only with invalid config, network issues ignored
// - public API calls never block on network
// - State is retained by broker, repeated identical state is not sent
// - preload progress is reported once per finished run
type tele struct {
	mu        sync.Mutex
	config    tele_config.Config
	log       *log2.Log
	transport Transporter
	lastState string
}

func New() tele_api.Teler {
	return &tele{}
}

func NewWithTransporter(trans Transporter) tele_api.Teler {
	return &tele{transport: trans}
}

func (self *tele) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config) error {
	self.config = teleConfig
	self.log = log
	if self.config.LogDebug {
		self.log.SetLevel(log2.LDebug)
	}
	if !self.config.Enabled {
		self.log.Infof(logMsgDisabled)
		return nil
	}
	if self.config.ClientID == "" {
		return errors.NotValidf("tele client_id empty")
	}

	// test code sets .transport
	if self.transport == nil { // production path
		self.transport = &transportMqtt{}
	}
	if err := self.transport.Init(ctx, log, teleConfig, self.onCommandMessage); err != nil {
		return errors.Annotate(err, "tele transport")
	}
	return nil
}

func (self *tele) Close() {
	if self.config.Enabled && self.transport != nil {
		self.transport.Close()
	}
}

func (self *tele) Error(e error) {
	if !self.config.Enabled || e == nil {
		return
	}
	self.log.Debugf("tele.Error: " + errors.ErrorStack(e))
	payload, err := errorPayload(e, self.config.BuildVersion)
	if err != nil {
		self.log.Infof("tele error payload err=%v", err)
		return
	}
	self.transport.SendTelemetry(payload)
}

func (self *tele) State(s selector.State) {
	if !self.config.Enabled {
		return
	}
	self.sendState(s, false)
}

func (self *tele) sendState(s selector.State, force bool) bool {
	key := s.String()
	self.mu.Lock()
	if !force && key == self.lastState {
		self.mu.Unlock()
		return true
	}
	self.lastState = key
	self.mu.Unlock()

	payload, err := statePayload(s)
	if err != nil {
		self.log.Infof("tele state payload err=%v", err)
		return false
	}
	return self.transport.SendState(payload)
}

func (self *tele) OnProgress(p preload.Progress) {
	if !self.config.Enabled || !p.Done() {
		return
	}
	payload, err := progressPayload(p)
	if err != nil {
		self.log.Infof("tele progress payload err=%v", err)
		return
	}
	self.transport.SendTelemetry(payload)
}
