package mqtt

import (
	"fmt"
	"net"
	"strconv"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// QoSAtLeastOnce is QoS 1. Every message this agent sends uses it.
const QoSAtLeastOnce byte = 1

// Retained availability payloads.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Config holds broker connection settings shared by every client this
// process creates.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Addr returns host:port for raw reachability probes.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// BrokerURL returns the broker URL in the form the client library expects.
func (c Config) BrokerURL() string {
	return "tcp://" + c.Addr()
}

// Token is the asynchronous confirmation for connect/publish/subscribe calls.
// Completion is only trusted after a successful wait, never assumed from the
// call returning.
type Token interface {
	WaitTimeout(time.Duration) bool
	Error() error
}

// MessageHandler receives one inbound message.
type MessageHandler func(topic string, payload []byte)

// Client is the thin transport surface the agent consumes. The broker
// protocol itself comes from the client library; this interface exists so
// delivery logic is testable without a broker.
type Client interface {
	Connect() Token
	Publish(topic string, qos byte, retained bool, payload any) Token
	Subscribe(topic string, qos byte, handler MessageHandler) Token
	Disconnect(quiesceMs uint)
	IsConnected() bool
}

// Will describes a last-will message registered at connect time.
type Will struct {
	Topic    string
	Payload  string
	Retained bool
}

// DialOptions describe one client instance.
type DialOptions struct {
	ClientID         string
	CleanSession     bool
	AutoReconnect    bool
	ConnectTimeout   time.Duration
	KeepAlive        time.Duration
	Will             *Will
	OnConnect        func(Client)
	OnConnectionLost func(error)
}

// DialFunc creates an unconnected client; swapped for a stub in tests.
type DialFunc func(cfg Config, opts DialOptions) Client

// Dial builds a client backed by the real library.
func Dial(cfg Config, opts DialOptions) Client {
	o := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL()).
		SetClientID(opts.ClientID).
		SetCleanSession(opts.CleanSession).
		SetAutoReconnect(opts.AutoReconnect)
	if cfg.Username != "" {
		o.SetUsername(cfg.Username)
		o.SetPassword(cfg.Password)
	}
	if opts.ConnectTimeout > 0 {
		o.SetConnectTimeout(opts.ConnectTimeout)
	}
	if opts.KeepAlive > 0 {
		o.SetKeepAlive(opts.KeepAlive)
	}
	if opts.Will != nil {
		o.SetWill(opts.Will.Topic, opts.Will.Payload, QoSAtLeastOnce, opts.Will.Retained)
	}
	if opts.OnConnect != nil {
		o.SetOnConnectHandler(func(c paho.Client) {
			opts.OnConnect(&pahoClient{c: c})
		})
	}
	if opts.OnConnectionLost != nil {
		o.SetConnectionLostHandler(func(_ paho.Client, err error) {
			opts.OnConnectionLost(err)
		})
	}
	return &pahoClient{c: paho.NewClient(o)}
}

type pahoClient struct {
	c paho.Client
}

func (p *pahoClient) Connect() Token {
	return p.c.Connect()
}

func (p *pahoClient) Publish(topic string, qos byte, retained bool, payload any) Token {
	return p.c.Publish(topic, qos, retained, payload)
}

func (p *pahoClient) Subscribe(topic string, qos byte, handler MessageHandler) Token {
	return p.c.Subscribe(topic, qos, func(_ paho.Client, m paho.Message) {
		handler(m.Topic(), m.Payload())
	})
}

func (p *pahoClient) Disconnect(quiesceMs uint) {
	p.c.Disconnect(quiesceMs)
}

func (p *pahoClient) IsConnected() bool {
	return p.c.IsConnected()
}

// ClientID returns a fresh client identity. Identities are never reused so
// concurrent publishers cannot collide on broker sessions.
func ClientID(device string) string {
	return fmt.Sprintf("retropie-ha-%s-%s", device, uuid.NewString()[:8])
}
