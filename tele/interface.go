// Package tele is telemetry client API, kiosk side.
// Implementation lives in internal/tele.
package tele

import (
	"context"

	"github.com/temoto/kiosk/internal/preload"
	"github.com/temoto/kiosk/internal/selector"
	"github.com/temoto/kiosk/log2"
	tele_config "github.com/temoto/kiosk/tele/config"
)

// Teler must not block callers on network.
// Error is wired as log2 error hook, so implementation must not log at error level
// through the same logger.
type Teler interface {
	Init(context.Context, *log2.Log, tele_config.Config) error
	Close()
	Error(error)
	State(selector.State)
	OnProgress(preload.Progress)
}

var _ preload.Observer = Teler(nil)
