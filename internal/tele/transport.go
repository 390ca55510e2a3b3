package tele

import (
	"context"

	"github.com/temoto/kiosk/log2"
	tele_config "github.com/temoto/kiosk/tele/config"
)

// Tele transport contract:
// - Init fails only with invalid config, ignores network errors
// - Send* never block on network, false means message was rejected locally
// - application may start without network available
type Transporter interface {
	Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, onCommand CommandCallback) error
	Close()
	SendState(payload []byte) bool
	SendTelemetry(payload []byte) bool
	SendCommandResponse(topicSuffix string, payload []byte) bool
}

type CommandCallback func(context.Context, []byte) bool

func TopicConnect(prefix string) string   { return prefix + "/c" }
func TopicState(prefix string) string     { return prefix + "/w/1s" }
func TopicTelemetry(prefix string) string { return prefix + "/w/1t" }
func TopicCommand(prefix string) string   { return prefix + "/r/c" }

func TopicResponse(prefix, suffix string) string { return prefix + "/" + suffix }
