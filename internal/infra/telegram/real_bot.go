// File: internal/infra/telegram/real_bot.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-match-bridge/internal/application"
	"telegram-match-bridge/internal/config"
	"telegram-match-bridge/internal/domain/ports/adapter"
	"telegram-match-bridge/internal/infra/logging"
)

var _ adapter.MessengerAdapter = (*DualBotAdapter)(nil)

type botEndpoint struct {
	api     *tgbotapi.BotAPI
	workers int
}

// DualBotAdapter speaks through two Telegram bot accounts over one adapter
// surface: the primary identity for match flows and the communicator identity
// for the anonymous relay. Each identity polls with its own worker pool.
type DualBotAdapter struct {
	endpoints map[adapter.BotIdentity]*botEndpoint
	facade    *application.BotFacade
	log       *zerolog.Logger

	cancelPolling context.CancelFunc
}

// NewDualBotAdapter connects both bot accounts. The facade is attached later
// with SetFacade: the use cases behind it need this adapter as their outbound
// messenger, so the facade cannot exist yet.
func NewDualBotAdapter(primary, communicator *config.BotConfig, logger *zerolog.Logger) (*DualBotAdapter, error) {
	if primary == nil || communicator == nil {
		return nil, errors.New("both bot configs are required")
	}

	l := logger.With().Str("component", "DualBotAdapter").Logger()
	endpoints := make(map[adapter.BotIdentity]*botEndpoint, 2)
	for identity, cfg := range map[adapter.BotIdentity]*config.BotConfig{
		adapter.IdentityPrimary:      primary,
		adapter.IdentityCommunicator: communicator,
	} {
		api, err := tgbotapi.NewBotAPI(cfg.Token)
		if err != nil {
			return nil, fmt.Errorf("init %s bot: %w", identity, err)
		}
		workers := cfg.Workers
		if workers <= 0 {
			workers = 5
		}
		endpoints[identity] = &botEndpoint{api: api, workers: workers}
	}
	return &DualBotAdapter{endpoints: endpoints, log: &l}, nil
}

// SetFacade wires inbound handling. Must be called before StartPolling.
func (d *DualBotAdapter) SetFacade(f *application.BotFacade) { d.facade = f }

// StartPolling polls both identities until ctx is canceled.
func (d *DualBotAdapter) StartPolling(ctx context.Context) error {
	if d.facade == nil {
		return errors.New("bot facade not attached")
	}
	ctx, cancel := context.WithCancel(ctx)
	d.cancelPolling = cancel

	var wg sync.WaitGroup
	for identity, ep := range d.endpoints {
		wg.Add(1)
		go func(identity adapter.BotIdentity, ep *botEndpoint) {
			defer wg.Done()
			d.poll(ctx, identity, ep)
		}(identity, ep)
	}
	wg.Wait()
	return nil
}

// StopPolling stops both polling loops gracefully.
func (d *DualBotAdapter) StopPolling() {
	if d.cancelPolling != nil {
		d.cancelPolling()
	}
}

func (d *DualBotAdapter) poll(ctx context.Context, identity adapter.BotIdentity, ep *botEndpoint) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := ep.api.GetUpdatesChan(u)

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < ep.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for {
				select {
				case update, ok := <-updateChan:
					if !ok {
						return
					}
					if err := d.handleUpdate(ctx, identity, update); err != nil {
						d.log.Error().Err(err).Str("identity", string(identity)).
							Int("worker", workerID).Msg("update handling failed")
					}
				case <-ctx.Done():
					return
				}
			}
		}(i + 1)
	}

	go func() {
		defer close(updateChan)
		for {
			select {
			case update := <-updates:
				select {
				case updateChan <- update:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	<-ctx.Done()
	ep.api.StopReceivingUpdates()
	wg.Wait()
}

func (d *DualBotAdapter) handleUpdate(ctx context.Context, identity adapter.BotIdentity, update tgbotapi.Update) error {
	switch {
	case update.CallbackQuery != nil:
		return d.handleCallback(ctx, identity, update.CallbackQuery)
	case update.Message != nil:
		return d.handleMessage(ctx, identity, update.Message)
	default:
		return nil
	}
}

func (d *DualBotAdapter) handleMessage(ctx context.Context, identity adapter.BotIdentity, msg *tgbotapi.Message) error {
	from := msg.From
	if from == nil {
		return nil
	}
	user, err := d.facade.RegisterOrFetch(ctx, from.ID, from.UserName)
	if err != nil {
		_ = d.SendMessage(ctx, identity, from.ID, "Something went wrong on our side. Please try again.")
		return err
	}
	ctx = logging.WithUserID(ctx, user.ID)

	text := msg.Text
	if identity == adapter.IdentityCommunicator {
		// The communicator bot carries chat traffic: a /start with the invite
		// payload attaches, /end_chat closes, everything else is relayed.
		switch {
		case msg.IsCommand() && msg.Command() == "start":
			text, err := d.facade.HandleChatStart(ctx, user, msg.CommandArguments())
			return d.reply(ctx, identity, from.ID, application.Reply{Text: text}, err)
		case msg.IsCommand() && msg.Command() == "end_chat":
			text, err := d.facade.HandleEndChat(ctx, user)
			return d.reply(ctx, identity, from.ID, application.Reply{Text: text}, err)
		case strings.HasPrefix(text, "/"):
			return d.SendMessage(ctx, identity, from.ID, "In this chat only plain messages and /end_chat work.")
		default:
			text, err := d.facade.HandleChatText(ctx, user, text)
			return d.reply(ctx, identity, from.ID, application.Reply{Text: text}, err)
		}
	}

	if !strings.HasPrefix(text, "/") {
		return d.SendMessage(ctx, identity, from.ID, "Sorry, I didn't understand that. Send /help for commands.")
	}
	cmd, arg := application.ParseCommand(text)
	rep, err := d.facade.Dispatch(ctx, user, cmd, arg)
	return d.reply(ctx, identity, from.ID, rep, err)
}

func (d *DualBotAdapter) handleCallback(ctx context.Context, identity adapter.BotIdentity, cq *tgbotapi.CallbackQuery) error {
	if cq.From == nil {
		return nil
	}
	// Ack first so the client stops the spinner even if handling is slow.
	if ep, ok := d.endpoints[identity]; ok {
		_, _ = ep.api.Request(tgbotapi.NewCallback(cq.ID, ""))
	}
	user, err := d.facade.RegisterOrFetch(ctx, cq.From.ID, cq.From.UserName)
	if err != nil {
		return err
	}
	ctx = logging.WithUserID(ctx, user.ID)
	cmd, arg := application.ParseCommand(cq.Data)
	rep, err := d.facade.Dispatch(ctx, user, cmd, arg)
	return d.reply(ctx, identity, cq.From.ID, rep, err)
}

// reply forwards the facade's reply, swallowing empty ones. A facade error
// still produces a generic apology so the user is never left hanging.
func (d *DualBotAdapter) reply(ctx context.Context, identity adapter.BotIdentity, tgID int64, rep application.Reply, err error) error {
	if err != nil {
		d.log.Error().Err(err).Int64("telegram_id", tgID).Str("identity", string(identity)).Msg("command failed")
		_ = d.SendMessage(ctx, identity, tgID, "Something went wrong on our side. Please try again.")
		return err
	}
	if rep.Text == "" {
		return nil
	}
	if len(rep.Buttons) > 0 {
		return d.SendButtons(ctx, identity, tgID, rep.Text, rep.Buttons)
	}
	return d.SendMessage(ctx, identity, tgID, rep.Text)
}

func (d *DualBotAdapter) SendMessage(_ context.Context, identity adapter.BotIdentity, telegramID int64, text string) error {
	ep, ok := d.endpoints[identity]
	if !ok {
		return fmt.Errorf("unknown bot identity %q", identity)
	}
	_, err := ep.api.Send(tgbotapi.NewMessage(telegramID, text))
	return err
}

func (d *DualBotAdapter) SendButtons(_ context.Context, identity adapter.BotIdentity, telegramID int64, text string, rows [][]adapter.InlineButton) error {
	ep, ok := d.endpoints[identity]
	if !ok {
		return fmt.Errorf("unknown bot identity %q", identity)
	}
	var kb [][]tgbotapi.InlineKeyboardButton
	for _, row := range rows {
		var out []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			switch {
			case b.URL != "":
				out = append(out, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			default:
				out = append(out, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
		}
		kb = append(kb, out)
	}
	msg := tgbotapi.NewMessage(telegramID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(kb...)
	_, err := ep.api.Send(msg)
	return err
}
