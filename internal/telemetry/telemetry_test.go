package telemetry

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"image"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/tiiuae/patrolengine/internal/framebuffer"
	"github.com/tiiuae/patrolengine/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type doneToken struct {
	mqtt.Token
	err error
}

func (t *doneToken) Wait() bool                       { return true }
func (t *doneToken) WaitTimeout(d time.Duration) bool { return true }
func (t *doneToken) Error() error                     { return t.err }

type published struct {
	Topic   string
	Payload []byte
}

// fakeClient implements only what the package uses.
type fakeClient struct {
	mqtt.Client
	mu        sync.Mutex
	published []published
	handlers  map[string]mqtt.MessageHandler
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]mqtt.MessageHandler)}
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic, payload.([]byte)})
	return &doneToken{}
}

func (c *fakeClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = callback
	return &doneToken{}
}

func (c *fakeClient) Published() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.published...)
}

func (c *fakeClient) deliver(subscription, topic string, payload []byte) {
	c.mu.Lock()
	h := c.handlers[subscription]
	c.mu.Unlock()
	h(c, &fakeMessage{topic: topic, payload: payload})
}

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }

type controls struct {
	mu     sync.Mutex
	aborts int
}

func (c *controls) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aborts++
}

func TestSignJWT(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keyData := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	now := time.Now()
	pass, err := signJWT(keyData, "", "auto-fleet-mgnt", now)
	require.NoError(t, err)

	claims := &jwt.StandardClaims{}
	token, err := jwt.ParseWithClaims(pass, claims, func(tok *jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	})
	require.NoError(t, err)
	assert.True(t, token.Valid)
	assert.Equal(t, "RS256", token.Method.Alg())
	assert.Equal(t, "auto-fleet-mgnt", claims.Audience)
	assert.Equal(t, now.Add(24*time.Hour).Unix(), claims.ExpiresAt)

	_, err = signJWT(keyData, "HS256", "x", now)
	assert.Error(t, err)
	_, err = signJWT([]byte("garbage"), "RS256", "x", now)
	assert.Error(t, err)
}

func TestSinkPublishesEvents(t *testing.T) {
	client := newFakeClient()
	sink := NewSink(client, "drone-1", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- sink.Run(ctx, func(types.Message) {}) }()

	sink.Receive(types.CreateMessage(types.MessageAlert, "drone-1", "*", types.Alert{Kind: types.AlertSiren}))

	assert.Eventually(t, func() bool { return len(client.Published()) == 1 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	p := client.Published()[0]
	assert.Equal(t, "/devices/drone-1/events/alert", p.Topic)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(p.Payload, &body))
	assert.Equal(t, "alert", body["message_type"])
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, map[string]interface{}{"kind": "siren"}, body["message"])
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2)), nil))
	return buf.Bytes()
}

func TestCommandsRouteBySubfolder(t *testing.T) {
	client := newFakeClient()
	c := &controls{}
	frames := framebuffer.New(zap.NewNop())

	require.NoError(t, SubscribeCommands(client, "drone-1", c, frames, zap.NewNop()))

	sub := "/devices/drone-1/commands/#"
	require.Contains(t, client.handlers, sub)

	client.deliver(sub, "/devices/drone-1/commands/control", []byte(`{"Command":"abort"}`))
	client.deliver(sub, "/devices/drone-1/commands/control", []byte(`{"Command":"dance"}`))
	client.deliver(sub, "/devices/drone-1/commands/control", []byte(`not json`))
	assert.Equal(t, 1, c.aborts)

	client.deliver(sub, "/devices/drone-1/commands/frame", []byte("broken"))
	_, ok := frames.Latest()
	assert.False(t, ok)

	client.deliver(sub, "/devices/drone-1/commands/frame", jpegBytes(t))
	f, ok := frames.Latest()
	require.True(t, ok)
	assert.Equal(t, 2, f.Width)

	client.deliver(sub, "/devices/drone-1/commands/mission", []byte(`{}`))
}
