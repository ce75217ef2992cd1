package telegram

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"sitewatch/internal/scheduler"
	"sitewatch/internal/site"
	"sitewatch/internal/storage"
	"sitewatch/pkg/logx"
)

// Directory is the site lookup surface commands need.
type Directory interface {
	List() []site.Site
	Resolve(name string) (string, bool)
}

// Scheduling is the scheduler surface commands need.
type Scheduling interface {
	RunNow(id string) error
	Snapshot() []scheduler.JobStatus
}

// Commands wires the chat command surface onto the bot.
type Commands struct {
	log   logx.Logger
	sites Directory
	subs  *storage.SubscriptionStore
	sched Scheduling
}

func NewCommands(sites Directory, subs *storage.SubscriptionStore, sched Scheduling, log logx.Logger) *Commands {
	return &Commands{
		log:   log.With(logx.String("svc", "commands")),
		sites: sites,
		subs:  subs,
		sched: sched,
	}
}

// Install registers every handler on the adapter's bot.
func (h *Commands) Install(a *Adapter) {
	b := a.bot
	b.Handle("/start", h.handleHelp)
	b.Handle("/help", h.handleHelp)
	b.Handle("/sites", h.handleSites)
	b.Handle("/subscribe", h.handleSubscribe)
	b.Handle("/unsubscribe", h.handleUnsubscribe)
	b.Handle("/subscriptions", h.handleSubscriptions)
	b.Handle("/check", h.handleCheck)
	b.Handle("/status", h.handleStatus)
}

func (h *Commands) handleHelp(c tele.Context) error {
	return c.Send(strings.Join([]string{
		"Site update notifications.",
		"",
		"/sites - list watchable sites",
		"/subscribe <site> - get updates (use \"all\" for every site)",
		"/unsubscribe <site> - stop updates",
		"/subscriptions - what this chat follows",
		"/check <site> - trigger a check now",
		"/status - scheduler state",
	}, "\n"))
}

func (h *Commands) handleSites(c tele.Context) error {
	sites := h.sites.List()
	if len(sites) == 0 {
		return c.Send("No sites registered.")
	}
	var sb strings.Builder
	sb.WriteString("Watchable sites:\n")
	for _, s := range sites {
		fmt.Fprintf(&sb, "- %s (%s): %s\n", s.DisplayName(), s.ID(), s.Description())
	}
	sb.WriteString("- all: every site above")
	return c.Send(sb.String())
}

func (h *Commands) handleSubscribe(c tele.Context) error {
	name := strings.TrimSpace(c.Message().Payload)
	if name == "" {
		return c.Send("Usage: /subscribe <site>\nSee /sites for names.")
	}
	id, ok := h.sites.Resolve(name)
	if !ok {
		return c.Send(fmt.Sprintf("Unknown site %q. See /sites.", name))
	}
	key, session := chatIdentity(c)
	already := slices.Contains(h.subs.Sites(key), id)
	if !h.subs.Subscribe(h.ctx(), key, id, session) {
		return c.Send(fmt.Sprintf("Subscribing to %s failed, please try again.", id))
	}
	h.log.Info("subscribed",
		logx.String("subscriber", key.ID),
		logx.Bool("group", key.IsGroup),
		logx.String("site", id))
	if already {
		return c.Send(fmt.Sprintf("Already subscribed to %s.", id))
	}
	return c.Send(fmt.Sprintf("Subscribed to %s.", id))
}

func (h *Commands) handleUnsubscribe(c tele.Context) error {
	name := strings.TrimSpace(c.Message().Payload)
	if name == "" {
		return c.Send("Usage: /unsubscribe <site>")
	}
	id, ok := h.sites.Resolve(name)
	if !ok {
		return c.Send(fmt.Sprintf("Unknown site %q. See /sites.", name))
	}
	key, _ := chatIdentity(c)
	if !slices.Contains(h.subs.Sites(key), id) {
		return c.Send(fmt.Sprintf("Not subscribed to %s.", id))
	}
	if !h.subs.Unsubscribe(h.ctx(), key, id) {
		return c.Send(fmt.Sprintf("Unsubscribing from %s failed, please try again.", id))
	}
	h.log.Info("unsubscribed",
		logx.String("subscriber", key.ID),
		logx.String("site", id))
	return c.Send(fmt.Sprintf("Unsubscribed from %s.", id))
}

func (h *Commands) handleSubscriptions(c tele.Context) error {
	key, _ := chatIdentity(c)
	sites := h.subs.Sites(key)
	if len(sites) == 0 {
		return c.Send("This chat follows nothing. Try /subscribe.")
	}
	return c.Send("This chat follows: " + strings.Join(sites, ", "))
}

func (h *Commands) handleCheck(c tele.Context) error {
	name := strings.TrimSpace(c.Message().Payload)
	if name == "" {
		return c.Send("Usage: /check <site>")
	}
	id, ok := h.sites.Resolve(name)
	if !ok || id == storage.AllSites {
		return c.Send(fmt.Sprintf("Unknown site %q. See /sites.", name))
	}
	if err := h.sched.RunNow(id); err != nil {
		return c.Send(fmt.Sprintf("Cannot check %s: %v", id, err))
	}
	return c.Send(fmt.Sprintf("Checking %s now.", id))
}

func (h *Commands) handleStatus(c tele.Context) error {
	snap := h.sched.Snapshot()
	if len(snap) == 0 {
		return c.Send("No sites scheduled.")
	}
	var sb strings.Builder
	sb.WriteString("Scheduler:\n")
	for _, js := range snap {
		switch {
		case js.Dormant:
			fmt.Fprintf(&sb, "- %s: dormant (%s)\n", js.Site, js.DormantReason)
		case js.Running:
			fmt.Fprintf(&sb, "- %s: checking now\n", js.Site)
		case js.Next.IsZero():
			fmt.Fprintf(&sb, "- %s: idle\n", js.Site)
		default:
			fmt.Fprintf(&sb, "- %s: next %s\n", js.Site, js.Next.Format("2006-01-02 15:04:05"))
		}
		if js.LastErr != "" {
			fmt.Fprintf(&sb, "  last error: %s\n", js.LastErr)
		}
	}
	return c.Send(strings.TrimRight(sb.String(), "\n"))
}

func (h *Commands) ctx() context.Context { return context.Background() }

func chatIdentity(c tele.Context) (storage.Key, string) {
	chat := c.Chat()
	key := storage.Key{
		ID:      strconv.FormatInt(chat.ID, 10),
		IsGroup: chat.Type != tele.ChatPrivate,
	}
	threadID := 0
	if msg := c.Message(); msg != nil {
		threadID = msg.ThreadID
	}
	return key, Session(chat.ID, threadID)
}
