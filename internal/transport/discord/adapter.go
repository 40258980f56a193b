package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"taskbot/internal/transport"
	"taskbot/pkg/logx"
)

type Config struct {
	Token string
}

// Adapter is the Discord gateway transport. Unlike Telegram, user and
// channel identifiers live in separate namespaces, so Target.UserID is
// resolved through a DM channel before sending.
type Adapter struct {
	cfg Config
	log logx.Logger

	session *discordgo.Session
	out     atomic.Value // stores (chan<- transport.Update)
	runMu   sync.Mutex
	running bool

	droppedUpdates uint64

	// dmCache maps user ID -> DM channel ID so repeated deliveries to the
	// same user don't re-hit the API.
	dmMu    sync.Mutex
	dmCache map[string]string
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("discord token is empty")
	}
	s, err := discordgo.New("Bot " + strings.TrimSpace(cfg.Token))
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, session: s, dmCache: map[string]string{}}
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot {
			return
		}
		a.sendUpdate(transport.Update{
			Kind: transport.UpdateMessage,
			Message: &transport.Message{
				ID:           m.ID,
				ChannelID:    m.ChannelID,
				FromID:       m.Author.ID,
				FromUsername: m.Author.Username,
				Text:         m.Content,
				DM:           m.GuildID == "",
			},
		})
	})

	a.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type != discordgo.InteractionMessageComponent {
			return
		}
		fromID := ""
		if i.Member != nil && i.Member.User != nil {
			fromID = i.Member.User.ID
		} else if i.User != nil {
			fromID = i.User.ID
		}
		messageID := ""
		if i.Message != nil {
			messageID = i.Message.ID
		}
		a.sendUpdate(transport.Update{
			Kind: transport.UpdateCallback,
			Callback: &transport.Callback{
				ID:        i.ID,
				ChannelID: i.ChannelID,
				FromID:    fromID,
				MessageID: messageID,
				Data:      i.MessageComponentData().CustomID,
			},
		})

		// Discord requires interactions to be acknowledged; AnswerCallback
		// can't reach the interaction token, so ack here and let any
		// follow-up text arrive as a regular message.
		_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredMessageUpdate,
		})
	})
}

func (a *Adapter) sendUpdate(up transport.Update) {
	v := a.out.Load()
	out, _ := v.(chan<- transport.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.out.Store(out)
	if err := a.session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	a.running = true
	a.log.Info("gateway connected")
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
		a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n))
	}
	return a.session.Close()
}

func (a *Adapter) resolveChannel(to transport.Target) (string, error) {
	if to.UserID != "" {
		a.dmMu.Lock()
		ch, ok := a.dmCache[to.UserID]
		a.dmMu.Unlock()
		if ok {
			return ch, nil
		}
		dm, err := a.session.UserChannelCreate(to.UserID)
		if err != nil {
			return "", fmt.Errorf("discord: open dm with %s: %w", to.UserID, err)
		}
		a.dmMu.Lock()
		a.dmCache[to.UserID] = dm.ID
		a.dmMu.Unlock()
		return dm.ID, nil
	}
	if to.ChannelID != "" {
		return to.ChannelID, nil
	}
	return "", errors.New("no resolvable delivery target")
}

const discordTextLimit = 2000

func componentsFromButtons(rows [][]transport.Button) []discordgo.MessageComponent {
	if len(rows) == 0 {
		return nil
	}
	out := make([]discordgo.MessageComponent, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		ar := discordgo.ActionsRow{Components: make([]discordgo.MessageComponent, 0, len(row))}
		for _, b := range row {
			ar.Components = append(ar.Components, discordgo.Button{
				Label:    b.Label,
				Style:    discordgo.SecondaryButton,
				CustomID: b.Data,
			})
		}
		out = append(out, ar)
	}
	return out
}

func (a *Adapter) Send(ctx context.Context, to transport.Target, p transport.Payload) error {
	channelID, err := a.resolveChannel(to)
	if err != nil {
		return err
	}

	chunks := splitDiscordText(p.Text, discordTextLimit)

	msg := &discordgo.MessageSend{}
	if len(chunks) > 0 {
		// Leading chunks go out as plain messages; components and files
		// attach to the final one.
		for _, c := range chunks[:len(chunks)-1] {
			if ctx != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			if _, err := a.session.ChannelMessageSend(channelID, c); err != nil {
				return fmt.Errorf("discord: send message: %w", err)
			}
		}
		msg.Content = chunks[len(chunks)-1]
	}
	msg.Components = componentsFromButtons(p.Buttons)
	for _, f := range p.Files {
		msg.Files = append(msg.Files, &discordgo.File{
			Name:   f.Name,
			Reader: bytes.NewReader(f.Data),
		})
	}

	if msg.Content == "" && len(msg.Components) == 0 && len(msg.Files) == 0 {
		return nil
	}
	if ctx != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if _, err := a.session.ChannelMessageSendComplex(channelID, msg); err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

// AnswerCallback is a no-op on Discord: component interactions are
// acknowledged inline in the gateway handler, and toast-style answers have
// no equivalent outside the interaction token's lifetime.
func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	return nil
}

func splitDiscordText(s string, limit int) []string {
	if s == "" {
		return nil
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start+limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		chunk := strings.TrimRight(string(rs[start:end]), "\n")
		if chunk != "" {
			out = append(out, chunk)
		}
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

var _ transport.Adapter = (*Adapter)(nil)
