package handler

import (
	"context"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/kiribu/expense-bot/internal/bot/client"
	"go.uber.org/zap"
)

const (
	startText = "Welcome! I am an expense tracker. Just type your expense and I will keep track of it."
	helpText  = "Just type what you spent money on and how much money you spent, and I will keep track of it!"
)

// Sender is the part of *tgbotapi.BotAPI used to reply.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Submitter forwards a message to the parsing service.
type Submitter interface {
	Submit(ctx context.Context, text, userID string) client.Outcome
}

type Handler struct {
	bot       Sender
	submitter Submitter
	logger    *zap.Logger
	wg        sync.WaitGroup
}

func NewHandler(bot Sender, submitter Submitter, logger *zap.Logger) *Handler {
	return &Handler{
		bot:       bot,
		submitter: submitter,
		logger:    logger,
	}
}

// Run handles updates concurrently until ctx is done or updates is closed,
// then waits for handlers already started. Cancelling ctx stops intake only;
// started submissions run to completion.
func (h *Handler) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	defer h.wg.Wait()

	handlerCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			h.wg.Add(1)
			go func() {
				defer h.wg.Done()
				h.HandleUpdate(handlerCtx, update)
			}()
		}
	}
}

func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || msg.Text == "" {
		return
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			h.sendMessage(msg.Chat.ID, startText)
			return
		case "help":
			h.sendMessage(msg.Chat.ID, helpText)
			return
		}
	}

	h.handleText(ctx, msg)
}

func (h *Handler) handleText(ctx context.Context, msg *tgbotapi.Message) {
	userID := strconv.FormatInt(msg.From.ID, 10)
	h.logger.Info("received message", zap.String("telegram_id", userID), zap.String("text", msg.Text))

	outcome := h.submitter.Submit(ctx, msg.Text, userID)
	if reply, ok := outcome.Reply(); ok {
		h.sendMessage(msg.Chat.ID, reply)
	}
}

func (h *Handler) sendMessage(chatID int64, text string) {
	if _, err := h.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		h.logger.Error("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
