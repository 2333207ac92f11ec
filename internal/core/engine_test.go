package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/keepmind9/syncbot/internal/auth"
	"github.com/keepmind9/syncbot/internal/logger"
	"github.com/keepmind9/syncbot/internal/lookup"
	"github.com/keepmind9/syncbot/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient plays the backend side of the handshake in memory
type fakeClient struct {
	mu            sync.Mutex
	handler       func(transport.Event)
	startErr      error
	rejectTokens  int
	users         map[int64]transport.User
	params        []transport.Parameters
	keys          []string
	tokens        []string
	userRequests  []int64
	loggedOut     bool
	closeRequests int
}

func newFakeClient() *fakeClient {
	return &fakeClient{users: make(map[int64]transport.User)}
}

func (f *fakeClient) emit(events ...transport.Event) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	for _, ev := range events {
		handler(ev)
	}
}

func (f *fakeClient) Start(handler func(transport.Event)) error {
	f.mu.Lock()
	if f.startErr != nil {
		f.mu.Unlock()
		return f.startErr
	}
	f.handler = handler
	f.mu.Unlock()

	f.emit(
		transport.OptionEvent{Name: "version", Value: "test"},
		transport.AuthorizationStateEvent{State: transport.AuthorizationStateWaitTdlibParameters},
	)
	return nil
}

func (f *fakeClient) SendParameters(params transport.Parameters) error {
	f.mu.Lock()
	f.params = append(f.params, params)
	f.mu.Unlock()
	go f.emit(transport.AuthorizationStateEvent{State: transport.AuthorizationStateWaitEncryptionKey})
	return nil
}

func (f *fakeClient) SendEncryptionKey(key string) error {
	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.mu.Unlock()
	go f.emit(transport.AuthorizationStateEvent{State: transport.AuthorizationStateWaitPhoneNumber})
	return nil
}

func (f *fakeClient) SendAuthToken(token string) error {
	f.mu.Lock()
	f.tokens = append(f.tokens, token)
	reject := f.rejectTokens > 0
	if reject {
		f.rejectTokens--
	}
	f.mu.Unlock()

	if reject {
		go f.emit(
			transport.ErrorEvent{Code: 401, Message: "Unauthorized"},
			transport.AuthorizationStateEvent{State: transport.AuthorizationStateWaitPhoneNumber},
		)
		return nil
	}
	go f.emit(
		transport.ConnectionStateEvent{State: transport.ConnectionStateConnecting},
		transport.AuthorizationStateEvent{State: transport.AuthorizationStateReady},
		transport.ConnectionStateEvent{State: transport.ConnectionStateReady},
	)
	return nil
}

func (f *fakeClient) GetUser(userID int64) error {
	f.mu.Lock()
	f.userRequests = append(f.userRequests, userID)
	user, ok := f.users[userID]
	f.mu.Unlock()

	if ok {
		go f.emit(transport.UserEvent{User: user})
	}
	return nil
}

func (f *fakeClient) LogOut() error {
	f.mu.Lock()
	f.loggedOut = true
	f.mu.Unlock()
	go f.emit(
		transport.AuthorizationStateEvent{State: transport.AuthorizationStateLoggingOut},
		transport.AuthorizationStateEvent{State: transport.AuthorizationStateClosing},
		transport.AuthorizationStateEvent{State: transport.AuthorizationStateClosed},
	)
	return nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	f.closeRequests++
	f.mu.Unlock()
	go f.emit(
		transport.AuthorizationStateEvent{State: transport.AuthorizationStateClosing},
		transport.AuthorizationStateEvent{State: transport.AuthorizationStateClosed},
	)
	return nil
}

func (f *fakeClient) tokenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tokens)
}

// recordingPrinter collects printed messages
type recordingPrinter struct {
	mu      sync.Mutex
	senders []transport.User
	texts   []string
}

func (p *recordingPrinter) PrintMessage(sender transport.User, msg transport.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.senders = append(p.senders, sender)
	p.texts = append(p.texts, msg.Text)
	return nil
}

func (p *recordingPrinter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.texts)
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	config := &Config{
		APIID:    12345,
		APIHash:  "0123456789abcdef",
		BotToken: "123456:token",
		Lookup:   LookupConfig{Timeout: "100ms"},
	}
	require.NoError(t, validateConfig(config))
	return config
}

// startEngine runs the engine until it is ready; the returned channel
// carries Run's result
func startEngine(t *testing.T, client *fakeClient, printer MessagePrinter) (*Engine, <-chan error) {
	t.Helper()
	return startEngineWithConfig(t, testConfig(t), client, printer)
}

func startEngineWithConfig(t *testing.T, config *Config, client *fakeClient, printer MessagePrinter) (*Engine, <-chan error) {
	t.Helper()
	engine := NewEngine(config, client, nil, printer)

	done := make(chan error, 1)
	go func() { done <- engine.Run(context.Background()) }()

	require.Eventually(t, engine.Ready, 2*time.Second, 10*time.Millisecond)
	return engine, done
}

func stopEngine(t *testing.T, engine *Engine, done <-chan error, logout bool) {
	t.Helper()
	require.NoError(t, engine.Stop(logout))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestEngine_HandshakeReachesReady(t *testing.T) {
	client := newFakeClient()
	engine, done := startEngine(t, client, &recordingPrinter{})

	assert.Equal(t, auth.StateReady, engine.SessionState())
	assert.Eventually(t, func() bool {
		return engine.ConnectionState() == transport.ConnectionStateReady
	}, time.Second, 10*time.Millisecond)

	client.mu.Lock()
	require.Len(t, client.params, 1)
	assert.Equal(t, int64(12345), client.params[0].APIID)
	assert.Equal(t, "0123456789abcdef", client.params[0].APIHash)
	assert.Equal(t, []string{""}, client.keys)
	assert.Equal(t, []string{"123456:token"}, client.tokens)
	client.mu.Unlock()

	stopEngine(t, engine, done, false)
	assert.Equal(t, auth.StateClosed, engine.SessionState())
	client.mu.Lock()
	assert.Equal(t, 1, client.closeRequests)
	client.mu.Unlock()
}

func TestEngine_PrintsResolvedSender(t *testing.T) {
	client := newFakeClient()
	client.users[42] = transport.User{ID: 42, FirstName: "Ana", LastName: "X"}
	printer := &recordingPrinter{}
	engine, done := startEngine(t, client, printer)

	client.emit(transport.NewMessageEvent{Message: transport.Message{ID: 1, SenderUserID: 42, Text: "hello"}})

	require.Eventually(t, func() bool { return printer.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	printer.mu.Lock()
	assert.Equal(t, "Ana", printer.senders[0].FirstName)
	assert.Equal(t, "X", printer.senders[0].LastName)
	assert.Equal(t, "hello", printer.texts[0])
	printer.mu.Unlock()

	stopEngine(t, engine, done, false)
}

func TestEngine_UnknownSenderFallsBackToSentinel(t *testing.T) {
	client := newFakeClient()
	printer := &recordingPrinter{}
	engine, done := startEngine(t, client, printer)

	client.emit(transport.NewMessageEvent{Message: transport.Message{ID: 2, SenderUserID: 99, Text: "anyone?"}})

	require.Eventually(t, func() bool { return printer.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	printer.mu.Lock()
	assert.Equal(t, lookup.UnknownUser, printer.senders[0])
	printer.mu.Unlock()

	stopEngine(t, engine, done, false)
}

func TestEngine_SkipsNonTextMessages(t *testing.T) {
	client := newFakeClient()
	client.users[7] = transport.User{ID: 7, FirstName: "Cy"}
	printer := &recordingPrinter{}
	engine, done := startEngine(t, client, printer)

	client.emit(
		transport.NewMessageEvent{Message: transport.Message{ID: 3, SenderUserID: 7}},
		transport.NewMessageEvent{Message: transport.Message{ID: 4, SenderUserID: 7, Text: "text"}},
	)

	require.Eventually(t, func() bool { return printer.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, printer.count())

	stopEngine(t, engine, done, false)
}

func TestEngine_RejectedTokenIsSentAgain(t *testing.T) {
	client := newFakeClient()
	client.rejectTokens = 1
	engine, done := startEngine(t, client, &recordingPrinter{})

	assert.Equal(t, 2, client.tokenCount())

	stopEngine(t, engine, done, false)
}

func TestEngine_StopWithLogout(t *testing.T) {
	client := newFakeClient()
	engine, done := startEngine(t, client, &recordingPrinter{})

	stopEngine(t, engine, done, true)

	client.mu.Lock()
	assert.True(t, client.loggedOut)
	assert.Zero(t, client.closeRequests)
	client.mu.Unlock()
	assert.Equal(t, auth.StateClosed, engine.SessionState())

	select {
	case <-engine.Closed():
	default:
		t.Fatal("Closed channel not closed")
	}
}

func TestEngine_StartFailure(t *testing.T) {
	client := newFakeClient()
	client.startErr = errors.New("boom")
	engine := NewEngine(testConfig(t), client, nil, &recordingPrinter{})

	err := engine.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start transport")
}

func TestEngine_ResolveUserOutsideDispatcher(t *testing.T) {
	client := newFakeClient()
	client.users[5] = transport.User{ID: 5, FirstName: "Di", LastName: "Z"}
	engine, done := startEngine(t, client, &recordingPrinter{})

	user := engine.ResolveUser(context.Background(), 5)
	assert.Equal(t, "Di", user.FirstName)

	stopEngine(t, engine, done, false)
}

// syncBuffer is a bytes.Buffer safe for the logger and the test to share
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestEngine_RawEventsFollowVerbosity(t *testing.T) {
	tests := []struct {
		name      string
		verbosity int
		logged    bool
	}{
		{"quiet", 1, false},
		{"threshold", 4, false},
		{"verbose", 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, logger.InitLogger(logger.Config{Level: "info"}))
			out := &syncBuffer{}
			logger.SetOutput(out)

			config := testConfig(t)
			config.OutputVerbosity = tt.verbosity
			client := newFakeClient()
			client.users[3] = transport.User{ID: 3, FirstName: "Ed"}
			printer := &recordingPrinter{}
			engine, done := startEngineWithConfig(t, config, client, printer)

			// the message is handled after the raw event, so printing marks it processed
			client.emit(
				transport.RawEvent{JSON: `{"@type":"updateRawMarker"}`},
				transport.NewMessageEvent{Message: transport.Message{ID: 9, SenderUserID: 3, Text: "x"}},
			)
			require.Eventually(t, func() bool { return printer.count() == 1 }, 2*time.Second, 10*time.Millisecond)

			assert.Equal(t, tt.logged, strings.Contains(out.String(), "updateRawMarker"))

			stopEngine(t, engine, done, false)
		})
	}
}
