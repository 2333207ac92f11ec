package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/keepmind9/syncbot/internal/logger"
	"github.com/keepmind9/syncbot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// TelegramLibraryVersion is announced through the "version" option
const TelegramLibraryVersion = "telegram-bot-api/v5.5.1"

// telegramAPI is the part of *tgbotapi.BotAPI the client needs
type telegramAPI interface {
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// TelegramOptions configures a TelegramClient
type TelegramOptions struct {
	Endpoint    string        // Bot API endpoint format, defaults to tgbotapi.APIEndpoint
	RetryDelay  time.Duration // Delay before a rejected step is requested again
	PollTimeout time.Duration // Long poll timeout
	EmitRaw     bool          // Emit RawEvent for every update and user
}

// TelegramClient implements Client on top of the Telegram Bot API
type TelegramClient struct {
	mu      sync.RWMutex
	opts    TelegramOptions
	api     telegramAPI
	params  *Parameters
	queue   *eventQueue
	ctx     context.Context
	cancel  context.CancelFunc
	closed  bool
	connect func(token, endpoint string) (telegramAPI, error)
}

// NewTelegramClient creates a new Telegram client
func NewTelegramClient(opts TelegramOptions) *TelegramClient {
	if opts.Endpoint == "" {
		opts.Endpoint = tgbotapi.APIEndpoint
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = constants.DefaultAuthRetryDelay
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = constants.DefaultPollTimeout
	}
	return &TelegramClient{
		opts:    opts,
		connect: connectTelegram,
	}
}

func connectTelegram(token, endpoint string) (telegramAPI, error) {
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, err
	}
	return bot, nil
}

// Start begins event delivery and announces the first authorization step
func (t *TelegramClient) Start(handler func(Event)) error {
	if handler == nil {
		return fmt.Errorf("event handler is required")
	}

	t.mu.Lock()
	if t.queue != nil {
		t.mu.Unlock()
		return fmt.Errorf("telegram client already started")
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.queue = newEventQueue(handler)
	t.mu.Unlock()

	logger.WithField("endpoint", t.opts.Endpoint).Info("starting-telegram-client")

	t.emit(OptionEvent{Name: "version", Value: TelegramLibraryVersion})
	t.emit(authEvent(AuthorizationStateWaitTdlibParameters))
	return nil
}

// SendParameters validates and stores the client parameters
func (t *TelegramClient) SendParameters(params Parameters) error {
	if !t.started() {
		return ErrNotStarted
	}

	if params.APIID <= 0 || params.APIHash == "" {
		t.emit(ErrorEvent{Code: 400, Message: "API_ID_INVALID"})
		t.retryLater(AuthorizationStateWaitTdlibParameters)
		return nil
	}

	t.mu.Lock()
	p := params
	t.params = &p
	t.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"api_id":             params.APIID,
		"database_directory": params.DatabaseDirectory,
		"device_model":       params.DeviceModel,
	}).Debug("telegram-parameters-accepted")

	t.emit(authEvent(AuthorizationStateWaitEncryptionKey))
	return nil
}

// SendEncryptionKey accepts the database key; the Bot API keeps no local database
func (t *TelegramClient) SendEncryptionKey(key string) error {
	if !t.started() {
		return ErrNotStarted
	}
	logger.WithField("has_key", key != "").Debug("telegram-encryption-key-accepted")
	t.emit(authEvent(AuthorizationStateWaitPhoneNumber))
	return nil
}

// SendAuthToken authenticates the bot token in the background
func (t *TelegramClient) SendAuthToken(token string) error {
	if !t.started() {
		return ErrNotStarted
	}
	go t.authorize(token)
	return nil
}

func (t *TelegramClient) authorize(token string) {
	t.emit(connEvent(ConnectionStateConnecting))

	api, err := t.connect(token, t.opts.Endpoint)
	if err != nil {
		code, msg := telegramErrorDetails(err)
		logger.WithFields(logrus.Fields{
			"token": maskSecret(token),
			"code":  code,
			"error": msg,
		}).Error("telegram-bot-token-rejected")
		t.emit(ErrorEvent{Code: code, Message: msg})
		t.retryLater(AuthorizationStateWaitPhoneNumber)
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		api.StopReceivingUpdates()
		return
	}
	t.api = api
	ctx := t.ctx
	t.mu.Unlock()

	logger.WithField("token", maskSecret(token)).Info("telegram-bot-authorized")

	t.emit(connEvent(ConnectionStateUpdating))
	t.emit(authEvent(AuthorizationStateReady))

	updates := api.GetUpdatesChan(tgbotapi.UpdateConfig{
		Offset:  0,
		Timeout: int(t.opts.PollTimeout.Seconds()),
	})
	t.emit(connEvent(ConnectionStateReady))

	go t.poll(ctx, updates)
}

func (t *TelegramClient) poll(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("telegram-long-polling-stopped")
			return
		case update, ok := <-updates:
			if !ok {
				logger.Info("telegram-updates-channel-closed")
				if ctx.Err() == nil {
					t.emit(connEvent(ConnectionStateWaitingForNetwork))
				}
				return
			}
			t.handleUpdate(update)
		}
	}
}

func (t *TelegramClient) handleUpdate(update tgbotapi.Update) {
	t.emitRaw(update)

	message := update.Message
	if message == nil || message.From == nil {
		return
	}

	var chatID int64
	if message.Chat != nil {
		chatID = message.Chat.ID
	}

	t.emit(NewMessageEvent{Message: Message{
		ID:           int64(message.MessageID),
		ChatID:       chatID,
		SenderUserID: message.From.ID,
		Text:         message.Text,
		Date:         time.Unix(int64(message.Date), 0),
	}})
}

// GetUser looks the user up through getChat; a private chat ID equals the user ID
func (t *TelegramClient) GetUser(userID int64) error {
	t.mu.RLock()
	api := t.api
	t.mu.RUnlock()

	if api == nil {
		return ErrNotStarted
	}

	go func() {
		chat, err := api.GetChat(tgbotapi.ChatInfoConfig{
			ChatConfig: tgbotapi.ChatConfig{ChatID: userID},
		})
		if err != nil {
			code, msg := telegramErrorDetails(err)
			logger.WithFields(logrus.Fields{
				"user_id": userID,
				"code":    code,
				"error":   msg,
			}).Debug("telegram-get-chat-failed")
			t.emit(ErrorEvent{Code: code, Message: msg})
			return
		}

		t.emitRaw(chat)
		t.emit(UserEvent{User: User{
			ID:        chat.ID,
			FirstName: chat.FirstName,
			LastName:  chat.LastName,
			Username:  chat.UserName,
		}})
	}()
	return nil
}

// LogOut logs the bot out of the Bot API server and closes the client
func (t *TelegramClient) LogOut() error {
	if !t.started() {
		return ErrNotStarted
	}

	t.mu.RLock()
	api := t.api
	t.mu.RUnlock()

	t.emit(authEvent(AuthorizationStateLoggingOut))
	if api != nil {
		if _, err := api.Request(tgbotapi.LogOutConfig{}); err != nil {
			code, msg := telegramErrorDetails(err)
			t.emit(ErrorEvent{Code: code, Message: msg})
		}
	}
	return t.Close()
}

// Close stops long polling and announces the closing states
func (t *TelegramClient) Close() error {
	t.mu.Lock()
	if t.queue == nil || t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	api := t.api
	t.api = nil
	t.cancel()
	t.mu.Unlock()

	t.emit(authEvent(AuthorizationStateClosing))
	if api != nil {
		api.StopReceivingUpdates()
	}
	t.emit(authEvent(AuthorizationStateClosed))

	t.queue.close()
	logger.Info("telegram-client-closed")
	return nil
}

func (t *TelegramClient) started() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.queue != nil && !t.closed
}

func (t *TelegramClient) emit(ev Event) {
	t.mu.RLock()
	q := t.queue
	t.mu.RUnlock()
	if q != nil {
		q.push(ev)
	}
}

func (t *TelegramClient) emitRaw(v interface{}) {
	if !t.opts.EmitRaw {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		logger.WithField("error", err).Debug("telegram-raw-marshal-failed")
		return
	}
	t.emit(RawEvent{JSON: string(data)})
}

// retryLater re-announces state after the retry delay unless the client closed
func (t *TelegramClient) retryLater(state AuthorizationState) {
	t.mu.RLock()
	ctx := t.ctx
	t.mu.RUnlock()

	time.AfterFunc(t.opts.RetryDelay, func() {
		if ctx.Err() == nil {
			t.emit(authEvent(state))
		}
	})
}

func telegramErrorDetails(err error) (int, string) {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return tgErr.Code, tgErr.Message
	}
	return constants.ErrorCodeInternal, err.Error()
}
