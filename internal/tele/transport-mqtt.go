package tele

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net/url"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/kiosk/helpers"
	"github.com/temoto/kiosk/log2"
	tele_config "github.com/temoto/kiosk/tele/config"
)

const (
	DefaultKeepalive      = 60 * time.Second
	DefaultNetworkTimeout = 30 * time.Second
)

var (
	willPayload    = []byte{0x00}
	connectPayload = []byte{0x01}
)

type transportMqtt struct {
	log       *log2.Log
	onCommand func([]byte) bool
	m         mqtt.Client
	timeout   time.Duration

	topicPrefix    string
	topicConnect   string
	topicState     string
	topicTelemetry string
	topicCommand   string
}

func (self *transportMqtt) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, onCommand CommandCallback) error {
	self.log = log
	mqttLog := log.Clone(log2.LInfo)
	if teleConfig.MqttLogDebug {
		mqttLog.SetLevel(log2.LDebug)
		mqtt.DEBUG = mqttLog
	}
	mqtt.ERROR = mqttLog
	mqtt.CRITICAL = mqttLog
	mqtt.WARN = mqttLog

	if _, err := url.ParseRequestURI(teleConfig.MqttBroker); err != nil {
		return errors.Annotatef(err, "tele mqtt_broker=%s", teleConfig.MqttBroker)
	}

	self.onCommand = func(payload []byte) bool {
		return onCommand(ctx, payload)
	}
	self.topicPrefix = teleConfig.ClientID
	self.topicConnect = TopicConnect(self.topicPrefix)
	self.topicState = TopicState(self.topicPrefix)
	self.topicTelemetry = TopicTelemetry(self.topicPrefix)
	self.topicCommand = TopicCommand(self.topicPrefix)
	keepAlive := helpers.IntSecondDefault(teleConfig.KeepaliveSec, DefaultKeepalive)
	self.timeout = helpers.IntSecondDefault(teleConfig.NetworkTimeoutSec, DefaultNetworkTimeout)
	if self.timeout < time.Second {
		self.timeout = time.Second
	}

	tlsconf := new(tls.Config)
	if teleConfig.TlsCaFile != "" {
		cabytes, err := os.ReadFile(teleConfig.TlsCaFile)
		if err != nil {
			return errors.Annotate(err, "TLS")
		}
		tlsconf.RootCAs = x509.NewCertPool()
		tlsconf.RootCAs.AppendCertsFromPEM(cabytes)
	}

	var store mqtt.Store = mqtt.NewMemoryStore()
	if teleConfig.StorePath != "" {
		store = mqtt.NewFileStore(teleConfig.StorePath)
	}

	mopt := mqtt.NewClientOptions().
		AddBroker(teleConfig.MqttBroker).
		SetBinaryWill(self.topicConnect, willPayload, 1, true).
		SetCleanSession(false).
		SetClientID(teleConfig.ClientID).
		SetUsername(teleConfig.ClientID).
		SetPassword(teleConfig.MqttPassword).
		SetDefaultPublishHandler(self.messageHandler).
		SetKeepAlive(keepAlive).
		SetPingTimeout(self.timeout).
		SetConnectTimeout(self.timeout).
		SetOrderMatters(false).
		SetTLSConfig(tlsconf).
		SetResumeSubs(true).
		SetStore(store).
		SetConnectRetryInterval(self.timeout / 2).
		SetOnConnectHandler(self.onConnectHandler).
		SetConnectionLostHandler(self.connectLostHandler).
		SetConnectRetry(true)
	self.m = mqtt.NewClient(mopt)
	// with ConnectRetry token completes only after first successful connect
	if token := self.m.Connect(); tokenFailed(token) {
		self.log.Errorf("tele mqtt connect err=%v", token.Error())
	}
	return nil
}

func (self *transportMqtt) Close() {
	if self.m == nil {
		return
	}
	self.log.Infof("tele mqtt close")
	if token := self.m.Publish(self.topicConnect, 1, true, willPayload); !token.WaitTimeout(self.timeout) {
		self.log.Infof("tele mqtt close publish timeout")
	}
	self.m.Disconnect(uint(self.timeout / time.Millisecond))
}

func (self *transportMqtt) SendState(payload []byte) bool {
	self.log.Debugf("tele mqtt state payload=%x", payload)
	return self.publish(self.topicState, true, payload)
}

func (self *transportMqtt) SendTelemetry(payload []byte) bool {
	return self.publish(self.topicTelemetry, false, payload)
}

func (self *transportMqtt) SendCommandResponse(topicSuffix string, payload []byte) bool {
	topic := TopicResponse(self.topicPrefix, topicSuffix)
	self.log.Debugf("tele mqtt publish command response to topic=%s", topic)
	return self.publish(topic, false, payload)
}

func (self *transportMqtt) publish(topic string, retain bool, payload []byte) bool {
	token := self.m.Publish(topic, 1, retain, payload)
	if tokenFailed(token) {
		self.log.Errorf("tele mqtt publish topic=%s err=%v", topic, token.Error())
		return false
	}
	return true
}

func (self *transportMqtt) messageHandler(c mqtt.Client, msg mqtt.Message) {
	if msg.Topic() != self.topicCommand {
		self.log.Errorf("tele mqtt received message in unexpected topic=%s payload=%x", msg.Topic(), msg.Payload())
		return
	}
	self.log.Debugf("tele mqtt command payload=%x", msg.Payload())
	self.onCommand(msg.Payload())
}

func (self *transportMqtt) connectLostHandler(c mqtt.Client, err error) {
	self.log.Infof("tele mqtt disconnect err=%v", err)
}

func (self *transportMqtt) onConnectHandler(c mqtt.Client) {
	self.log.Infof("tele mqtt connect")
	if token := c.Subscribe(self.topicCommand, 1, nil); !token.WaitTimeout(self.timeout) || token.Error() != nil {
		self.log.Errorf("tele mqtt subscribe topic=%s err=%v", self.topicCommand, token.Error())
		return
	}
	c.Publish(self.topicConnect, 1, true, connectPayload)
}

// tokenFailed does not wait, pending token is not failure.
func tokenFailed(token mqtt.Token) bool {
	select {
	case <-token.Done():
		return token.Error() != nil
	default:
		return false
	}
}
