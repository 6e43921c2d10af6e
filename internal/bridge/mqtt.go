package bridge

import (
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig is the broker connection configuration.
type MQTTConfig struct {
	BrokerURL string
	Username  string
	Password  string
	ClientID  string
}

// Publisher is the slice of the MQTT session the bridge uses. Split out so
// tests can record traffic without a broker.
type Publisher interface {
	Publish(topic string, payload []byte, retain bool) error
	Subscribe(topic string, cb func(topic string, payload []byte)) error
	Disconnect()
}

type mqttClient struct {
	client mqtt.Client

	mu   sync.Mutex
	subs map[string]func(string, []byte)
}

// DialMQTT connects to the broker and keeps subscriptions alive across
// reconnects.
func DialMQTT(cfg MQTTConfig) (Publisher, error) {
	if strings.TrimSpace(cfg.BrokerURL) == "" {
		return nil, fmt.Errorf("mqtt broker url is required")
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = randomClientID()
	}

	mc := &mqttClient{subs: make(map[string]func(string, []byte))}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	if strings.HasPrefix(cfg.BrokerURL, "ssl://") || strings.HasPrefix(cfg.BrokerURL, "tls://") {
		opts.SetTLSConfig(&tls.Config{})
	}
	opts.OnConnect = func(_ mqtt.Client) {
		mc.resubscribeAll()
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	mc.client = client
	return mc, nil
}

func (c *mqttClient) Publish(topic string, payload []byte, retain bool) error {
	if token := c.client.Publish(topic, 0, retain, payload); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (c *mqttClient) Subscribe(topic string, cb func(string, []byte)) error {
	c.mu.Lock()
	c.subs[topic] = cb
	c.mu.Unlock()

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		cb(msg.Topic(), msg.Payload())
	}
	if token := c.client.Subscribe(topic, 0, handler); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// Disconnect flushes outstanding work and closes the broker connection.
func (c *mqttClient) Disconnect() {
	c.client.Disconnect(250)
}

func (c *mqttClient) resubscribeAll() {
	c.mu.Lock()
	topics := make(map[string]func(string, []byte), len(c.subs))
	for topic, cb := range c.subs {
		topics[topic] = cb
	}
	c.mu.Unlock()

	for topic, cb := range topics {
		callback := cb
		handler := func(_ mqtt.Client, msg mqtt.Message) {
			callback(msg.Topic(), msg.Payload())
		}
		_ = c.client.Subscribe(topic, 0, handler).Wait()
	}
}

func randomClientID() string {
	nonce := make([]byte, 8)
	_, _ = rand.Read(nonce)
	return "kia-bridge-" + base64.RawURLEncoding.EncodeToString(nonce)
}
