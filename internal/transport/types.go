// Package transport defines the platform-neutral contract between the bot
// core and a chat platform adapter. IDs are opaque strings; each adapter
// parses them into whatever its platform uses natively.
package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           string
	ChannelID    string
	FromID       string
	FromUsername string
	Text         string
	DM           bool
}

// Callback is a button press. Data carries "action:payload".
type Callback struct {
	ID        string
	ChannelID string
	FromID    string
	MessageID string
	Data      string
}

// Target names one delivery destination: a user's direct messages or a
// channel. At most one side is set.
type Target struct {
	UserID    string
	ChannelID string
}

func (t Target) IsZero() bool { return t.UserID == "" && t.ChannelID == "" }

// Button is one pressable component; Data is round-tripped back through
// Callback.Data when pressed.
type Button struct {
	Label string
	Data  string
}

type Attachment struct {
	Name string
	Data []byte
}

// Payload is one outward message. Buttons render as rows of inline
// components below the text; Files are attached documents.
type Payload struct {
	Text    string
	Buttons [][]Button
	Files   []Attachment
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	Send(ctx context.Context, to Target, p Payload) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface adapters can implement to
// publish the command list into the platform's native menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
