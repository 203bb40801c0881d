package main

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
)

type SendStatus int

const (
	StatusSent SendStatus = iota
	StatusSendFailed
	StatusNotFound
)

func (s SendStatus) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusSendFailed:
		return "send failed"
	case StatusNotFound:
		return "not found"
	}
	return "unknown"
}

type MessageResult struct {
	User   string
	Status SendStatus
	Error  error
}

// RunOutcome tallies one run. It is logged, never persisted.
type RunOutcome struct {
	Targets int
	Results []MessageResult
}

func (o *RunOutcome) Sent() int {
	return o.count(StatusSent)
}

func (o *RunOutcome) count(status SendStatus) int {
	n := 0
	for _, r := range o.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// Bot performs one complete run: browser session, cookie login and one
// message per target user.
type Bot struct {
	config       *Config
	selectors    Selectors
	sessions     SessionOpener
	siteRoot     string
	cookieDomain string
	pause        pauseFunc
	preflight    func(ctx context.Context, siteRoot string) error
	dryRun       bool
}

func NewBot(config *Config, selectors Selectors, sessions SessionOpener) (*Bot, error) {
	siteRoot, cookieDomain, err := SiteTargets(config.MessagesURL)
	if err != nil {
		return nil, err
	}
	return &Bot{
		config:       config,
		selectors:    selectors,
		sessions:     sessions,
		siteRoot:     siteRoot,
		cookieDomain: cookieDomain,
		pause:        randomPause,
		preflight:    checkNetworkConnectivity,
	}, nil
}

func (b *Bot) Run(ctx context.Context) (*RunOutcome, error) {
	users := b.config.TargetUsers
	outcome := &RunOutcome{Targets: len(users)}
	if len(users) == 0 {
		Log("error", "Target user list is empty. Nothing to do. Exiting run.")
		return outcome, nil
	}

	if b.preflight != nil {
		if err := b.preflight(ctx, b.siteRoot); err != nil {
			Logf("warn", "Network connectivity check failed: %v", err)
			Log("warn", "Proceeding anyway, but you may experience connection issues")
		}
	}

	startTime := time.Now()
	err := b.sessions.WithSession(ctx, func(ctx context.Context, page Page) error {
		if _, err := InjectCookies(ctx, page, b.config.CookiesFilePath, b.siteRoot, b.cookieDomain, b.pause); err != nil {
			return fmt.Errorf("failed to load cookies, stopping bot run: %w", err)
		}

		Logf("info", "Navigating to '%s'...", b.config.MessagesURL)
		if err := navigateWithRetry(ctx, page, b.config.MessagesURL); err != nil {
			return fmt.Errorf("failed to open messages page: %w", err)
		}

		nav := NewNavigator(page, b.selectors, b.pause)
		nav.DismissPopup(ctx)
		if err := nav.WaitForConversations(ctx); err != nil {
			return err
		}
		b.pause(ctx, 3*time.Second, 6*time.Second)

		Logf("info", "Will attempt to send messages to %d target users: %s", len(users), strings.Join(users, ", "))
		for i, user := range users {
			if err := ctx.Err(); err != nil {
				return err
			}
			outcome.Results = append(outcome.Results, b.messageUser(ctx, nav, user))

			if i < len(users)-1 {
				b.pause(ctx, 5*time.Second, 10*time.Second)
			}
		}
		return nil
	})

	b.logSummary(outcome, time.Since(startTime))
	return outcome, err
}

func (b *Bot) messageUser(ctx context.Context, nav *Navigator, user string) MessageResult {
	name := printable(user)
	Logf("info", "--- Processing user: '%s' ---", name)

	row, err := nav.FindConversation(ctx, user)
	if err != nil || row == nil {
		Logf("warn", "Could not find or click conversation for '%s'.", name)
		return MessageResult{User: user, Status: StatusNotFound, Error: err}
	}
	if b.dryRun {
		Logf("info", "[DRY RUN] Would send message to '%s': %s", name, b.config.MessageText)
		return MessageResult{User: user, Status: StatusSent}
	}
	if err := nav.OpenConversation(ctx, row); err != nil {
		Logf("warn", "Could not find or click conversation for '%s': %v", name, err)
		return MessageResult{User: user, Status: StatusNotFound, Error: err}
	}

	if err := nav.SendMessage(ctx, b.config.MessageText); err != nil {
		Logf("warn", "Opened chat for '%s' but FAILED TO SEND a message: %v", name, err)
		return MessageResult{User: user, Status: StatusSendFailed, Error: err}
	}
	Logf("info", "Message successfully sent to '%s'.", name)
	return MessageResult{User: user, Status: StatusSent}
}

func (b *Bot) logSummary(outcome *RunOutcome, duration time.Duration) {
	Log("info", "=== Automation Summary ===")
	Logf("info", "Target users: %d", outcome.Targets)
	Logf("info", "Processed: %d", len(outcome.Results))
	Logf("info", "Sent: %d", outcome.Sent())
	Logf("info", "Send failed: %d", outcome.count(StatusSendFailed))
	Logf("info", "Not found: %d", outcome.count(StatusNotFound))
	Logf("info", "Duration: %v", duration.Round(time.Second))

	for _, result := range outcome.Results {
		if result.Status != StatusSent {
			Logf("warn", "  - %s: %s", printable(result.User), result.Status)
		}
	}
	Logf("info", "Finished processing. %d/%d messages successfully sent.", outcome.Sent(), outcome.Targets)
}

func printable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		return -1
	}, s)
}
