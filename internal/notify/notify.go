// Package notify delivers short user-facing messages ("toasts").
package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/akruel/list-flix/internal/kv"
)

// Level is the tone of a message.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Message is one notification.
type Message struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

// Notifier shows a message to the current user.
type Notifier interface {
	Success(ctx context.Context, text string)
	Error(ctx context.Context, text string)
}

// KeyFlash holds the pending flash message in a kv.Store.
const KeyFlash = "flash"

// FlashNotifier keeps the latest message in the browser's store until the
// next page render pops it.
type FlashNotifier struct {
	store kv.Store
}

func NewFlashNotifier(store kv.Store) *FlashNotifier {
	return &FlashNotifier{store: store}
}

func (n *FlashNotifier) Success(ctx context.Context, text string) {
	n.set(Message{Level: LevelSuccess, Text: text})
}

func (n *FlashNotifier) Error(ctx context.Context, text string) {
	n.set(Message{Level: LevelError, Text: text})
}

func (n *FlashNotifier) set(m Message) {
	b, _ := json.Marshal(m)
	n.store.Set(KeyFlash, string(b))
}

// Pop returns the pending message, if any, and clears it.
func (n *FlashNotifier) Pop() (Message, bool) {
	raw, ok := n.store.Get(KeyFlash)
	if !ok {
		return Message{}, false
	}
	n.store.Remove(KeyFlash)

	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil || m.Text == "" {
		return Message{}, false
	}
	return m, true
}

// LogNotifier writes messages to a logger. Used where no browser is
// listening, such as background jobs.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Success(ctx context.Context, text string) {
	n.Logger.InfoContext(ctx, "notify", slog.String("level", string(LevelSuccess)), slog.String("text", text))
}

func (n LogNotifier) Error(ctx context.Context, text string) {
	n.Logger.WarnContext(ctx, "notify", slog.String("level", string(LevelError)), slog.String("text", text))
}
