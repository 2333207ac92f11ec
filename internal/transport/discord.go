package transport

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keepmind9/syncbot/internal/logger"
	"github.com/keepmind9/syncbot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// DiscordSessionInterface defines the interface we need from discordgo.Session
// This allows us to mock it in tests without depending on concrete types
type DiscordSessionInterface interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
}

// DiscordOptions configures a DiscordClient
type DiscordOptions struct {
	RetryDelay time.Duration
}

// DiscordClient implements Client on top of the Discord gateway
type DiscordClient struct {
	mu         sync.RWMutex
	opts       DiscordOptions
	session    DiscordSessionInterface
	appID      int64
	queue      *eventQueue
	closed     bool
	done       chan struct{}
	newSession func(token string) (DiscordSessionInterface, error)
}

// NewDiscordClient creates a new Discord client
func NewDiscordClient(opts DiscordOptions) *DiscordClient {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = constants.DefaultAuthRetryDelay
	}
	return &DiscordClient{
		opts:       opts,
		newSession: newDiscordSession,
	}
}

func newDiscordSession(token string) (DiscordSessionInterface, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Start begins event delivery and announces the first authorization step
func (d *DiscordClient) Start(handler func(Event)) error {
	if handler == nil {
		return fmt.Errorf("event handler is required")
	}

	d.mu.Lock()
	if d.queue != nil {
		d.mu.Unlock()
		return fmt.Errorf("discord client already started")
	}
	d.queue = newEventQueue(handler)
	d.done = make(chan struct{})
	d.mu.Unlock()

	logger.Info("starting-discord-client")

	d.emit(OptionEvent{Name: "version", Value: "discordgo/" + discordgo.VERSION})
	d.emit(authEvent(AuthorizationStateWaitTdlibParameters))
	return nil
}

// SendParameters records the application ID; api_id carries it for Discord
func (d *DiscordClient) SendParameters(params Parameters) error {
	if !d.started() {
		return ErrNotStarted
	}
	if params.APIID <= 0 {
		d.emit(ErrorEvent{Code: 400, Message: "application id is required"})
		d.retryLater(AuthorizationStateWaitTdlibParameters)
		return nil
	}

	d.mu.Lock()
	d.appID = params.APIID
	d.mu.Unlock()

	d.emit(authEvent(AuthorizationStateWaitEncryptionKey))
	return nil
}

// SendEncryptionKey is accepted as-is; the gateway has no local database
func (d *DiscordClient) SendEncryptionKey(key string) error {
	if !d.started() {
		return ErrNotStarted
	}
	d.emit(authEvent(AuthorizationStateWaitPhoneNumber))
	return nil
}

// SendAuthToken opens the gateway connection in the background
func (d *DiscordClient) SendAuthToken(token string) error {
	if !d.started() {
		return ErrNotStarted
	}
	go d.authorize(token)
	return nil
}

func (d *DiscordClient) authorize(token string) {
	d.emit(connEvent(ConnectionStateConnecting))

	session, err := d.newSession(token)
	if err != nil {
		d.reject(token, err)
		return
	}

	session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		logger.WithFields(logrus.Fields{
			"bot_user": r.User.Username,
			"guilds":   len(r.Guilds),
		}).Info("discord-gateway-ready")
		d.emit(authEvent(AuthorizationStateReady))
		d.emit(connEvent(ConnectionStateReady))
	})
	session.AddHandler(func(s *discordgo.Session, c *discordgo.Connect) {
		d.emit(connEvent(ConnectionStateUpdating))
	})
	session.AddHandler(func(s *discordgo.Session, c *discordgo.Disconnect) {
		if d.started() {
			d.emit(connEvent(ConnectionStateWaitingForNetwork))
		}
	})
	session.AddHandler(d.handleMessageCreate)

	if err := session.Open(); err != nil {
		d.reject(token, err)
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		session.Close()
		return
	}
	d.session = session
	d.mu.Unlock()

	logger.WithField("token", maskSecret(token)).Info("discord-session-opened")
}

func (d *DiscordClient) reject(token string, err error) {
	code, msg := discordErrorDetails(err)
	logger.WithFields(logrus.Fields{
		"token": maskSecret(token),
		"code":  code,
		"error": msg,
	}).Error("discord-bot-token-rejected")
	d.emit(ErrorEvent{Code: code, Message: msg})
	d.retryLater(AuthorizationStateWaitPhoneNumber)
}

func (d *DiscordClient) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	senderID, err := strconv.ParseInt(m.Author.ID, 10, 64)
	if err != nil {
		logger.WithField("author_id", m.Author.ID).Warn("discord-author-id-not-numeric")
		return
	}
	channelID, _ := strconv.ParseInt(m.ChannelID, 10, 64)
	messageID, _ := strconv.ParseInt(m.ID, 10, 64)

	d.emit(NewMessageEvent{Message: Message{
		ID:           messageID,
		ChatID:       channelID,
		SenderUserID: senderID,
		Text:         m.Content,
		Date:         m.Timestamp,
	}})
}

// GetUser fetches the user over REST and answers with a UserEvent
func (d *DiscordClient) GetUser(userID int64) error {
	d.mu.RLock()
	session := d.session
	d.mu.RUnlock()

	if session == nil {
		return ErrNotStarted
	}

	go func() {
		u, err := session.User(strconv.FormatInt(userID, 10))
		if err != nil {
			code, msg := discordErrorDetails(err)
			d.emit(ErrorEvent{Code: code, Message: msg})
			return
		}
		d.emit(UserEvent{User: User{
			ID:        userID,
			FirstName: u.Username,
			Username:  u.Username,
		}})
	}()
	return nil
}

// LogOut closes the session; bot tokens stay valid on Discord
func (d *DiscordClient) LogOut() error {
	if !d.started() {
		return ErrNotStarted
	}
	d.emit(authEvent(AuthorizationStateLoggingOut))
	return d.Close()
}

// Close closes the gateway connection and announces the closing states
func (d *DiscordClient) Close() error {
	d.mu.Lock()
	if d.queue == nil || d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	session := d.session
	d.session = nil
	close(d.done)
	d.mu.Unlock()

	d.emit(authEvent(AuthorizationStateClosing))

	var closeErr error
	if session != nil {
		if err := session.Close(); err != nil {
			closeErr = fmt.Errorf("failed to close discord session: %w", err)
		}
	}

	d.emit(authEvent(AuthorizationStateClosed))
	d.queue.close()
	return closeErr
}

func (d *DiscordClient) started() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.queue != nil && !d.closed
}

func (d *DiscordClient) emit(ev Event) {
	d.mu.RLock()
	q := d.queue
	d.mu.RUnlock()
	if q != nil {
		q.push(ev)
	}
}

func (d *DiscordClient) retryLater(state AuthorizationState) {
	d.mu.RLock()
	done := d.done
	d.mu.RUnlock()

	time.AfterFunc(d.opts.RetryDelay, func() {
		select {
		case <-done:
		default:
			d.emit(authEvent(state))
		}
	})
}

func discordErrorDetails(err error) (int, string) {
	if restErr, ok := err.(*discordgo.RESTError); ok {
		if restErr.Message != nil {
			return restErr.Message.Code, restErr.Message.Message
		}
		if restErr.Response != nil {
			return restErr.Response.StatusCode, restErr.Response.Status
		}
	}
	return constants.ErrorCodeInternal, err.Error()
}
