package mqtt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tradedesk/routeopt/core/model"
)

func withMockClient(t *testing.T, mc *mockClient) *Client {
	t.Helper()
	orig := newMQTTClient
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() { newMQTTClient = orig })
	c, err := Connect(Config{Broker: "tcp://localhost:1883", ClientID: "test", BackoffMS: 1})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return c
}

func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	if err := os.WriteFile(certFile, certPEM, 0644); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0644); err != nil {
		t.Fatalf("write key: %v", err)
	}
	if err := os.WriteFile(caFile, certPEM, 0644); err != nil {
		t.Fatalf("write ca: %v", err)
	}
	return
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	if err != nil {
		t.Fatalf("load tls: %v", err)
	}
	if len(tlsCfg.Certificates) == 0 {
		t.Fatalf("no certs loaded")
	}
	if tlsCfg.RootCAs == nil {
		t.Fatalf("no root CAs")
	}
}

func TestNewClientOptionsAuth(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("opts: %v", err)
	}
	if opts.Username != "u" || opts.Password != "p" {
		t.Fatalf("auth not set")
	}
}

func TestResultsPublisherTopicAndRetain(t *testing.T) {
	mc := &mockClient{}
	c := withMockClient(t, mc)

	pub := NewResultsPublisher(c)
	o := &model.Outcome{
		RunID:        "run-1",
		ProductGroup: "nh3_domestic_barge",
		Reason:       model.ReasonThreshold,
		Result:       &model.SolveResult{Status: model.StatusOptimal, Profit: 5000},
	}
	if err := pub.Publish(context.Background(), o); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(mc.published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(mc.published))
	}
	got := mc.published[0]
	if got.topic != "routeopt/results/nh3_domestic_barge" {
		t.Errorf("unexpected topic %q", got.topic)
	}
	if !got.retained {
		t.Error("results should be retained")
	}
	var back model.Outcome
	if err := json.Unmarshal(got.payload, &back); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if back.RunID != "run-1" || back.Result.Profit != 5000 {
		t.Errorf("payload mismatch: %+v", back)
	}
}

func TestNarrativeRequestPayload(t *testing.T) {
	mc := &mockClient{}
	c := withMockClient(t, mc)

	nr := NewNarrativeRequester(c)
	o := &model.Outcome{
		RunID:        "run-2",
		ProductGroup: "uan_domestic",
		Reason:       model.ReasonThreshold,
		Triggers:     []model.TriggerDetail{{Key: "nola_buy", Baseline: 10, Current: 13, Threshold: 2, Delta: 3}},
		Result:       &model.SolveResult{Status: model.StatusOptimal, Profit: 777},
		Distribution: &model.Distribution{Status: model.StatusOptimal, Signal: model.SignalStrongGo},
	}
	if err := nr.RequestNarrative(context.Background(), o); err != nil {
		t.Fatalf("RequestNarrative: %v", err)
	}
	got := mc.published[0]
	if got.topic != "routeopt/narrative/request" {
		t.Errorf("unexpected topic %q", got.topic)
	}
	if got.retained {
		t.Error("narrative requests must not be retained")
	}
	var req narrativeRequest
	if err := json.Unmarshal(got.payload, &req); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.Signal != "strong_go" || req.Profit != 777 || len(req.Triggers) != 1 {
		t.Errorf("request mismatch: %+v", req)
	}
}

func TestPublishRetry(t *testing.T) {
	mc := &mockClient{publishErrs: []error{fmt.Errorf("net fail"), nil}}
	c := withMockClient(t, mc)

	pub := NewResultsPublisher(c)
	err := pub.Publish(context.Background(), &model.Outcome{RunID: "r", ProductGroup: "pg"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(mc.published) != 2 {
		t.Fatalf("expected a retry, got %d attempts", len(mc.published))
	}
}

func TestPublishExhaustsRetries(t *testing.T) {
	errs := []error{}
	for i := 0; i < 10; i++ {
		errs = append(errs, fmt.Errorf("net fail"))
	}
	mc := &mockClient{publishErrs: errs}
	c := withMockClient(t, mc)

	pub := NewResultsPublisher(c)
	if err := pub.Publish(context.Background(), &model.Outcome{RunID: "r", ProductGroup: "pg"}); err == nil {
		t.Fatal("expected error after retry exhaustion")
	}
}

func TestSubscribeDeliversPayload(t *testing.T) {
	mc := &mockClient{}
	c := withMockClient(t, mc)

	var gotTopic string
	var gotPayload []byte
	err := c.Subscribe("routeopt/live/#", 1, func(topic string, payload []byte) {
		gotTopic = topic
		gotPayload = payload
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if len(mc.subscribed) != 1 || mc.subscribed[0].qos != 1 {
		t.Fatalf("subscription not registered: %+v", mc.subscribed)
	}
	mc.deliver("routeopt/live/markets", []byte(`{"x":1}`))
	if gotTopic != "routeopt/live/markets" || string(gotPayload) != `{"x":1}` {
		t.Errorf("handler got %q %q", gotTopic, gotPayload)
	}
}

// mockClient implements pahoClient for tests.
type mockClient struct {
	opts       *paho.ClientOptions
	subscribed []struct {
		topic   string
		qos     byte
		handler paho.MessageHandler
	}
	published []struct {
		topic    string
		qos      byte
		retained bool
		payload  []byte
	}
	publishErrs []error
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(nil)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) {}
func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	m.published = append(m.published, struct {
		topic    string
		qos      byte
		retained bool
		payload  []byte
	}{topic, qos, retained, payload.([]byte)})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}
func (m *mockClient) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	m.subscribed = append(m.subscribed, struct {
		topic   string
		qos     byte
		handler paho.MessageHandler
	}{topic, qos, callback})
	return &dummyToken{}
}

func (m *mockClient) deliver(topic string, payload []byte) {
	for _, s := range m.subscribed {
		s.handler(nil, mockMessage{topic: topic, p: payload})
	}
}

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

type mockMessage struct {
	topic string
	p     []byte
}

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return m.topic }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.p }
func (m mockMessage) Ack()              {}
