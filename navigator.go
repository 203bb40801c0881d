package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/jaytaylor/html2text"
)

var ErrConversationsUnavailable = errors.New("conversation list did not load")

const (
	popupTimeout         = 15 * time.Second
	listContainerTimeout = 35 * time.Second
	conversationTimeout  = 30 * time.Second
	toastTimeout         = 7 * time.Second
	clickTargetTimeout   = 15 * time.Second
	writeTargetTimeout   = 15 * time.Second
	typeReadyTimeout     = 5 * time.Second

	pageDumpLimit = 4000
)

// Navigator walks the messages UI: popups, the conversation list and the
// compose region of an open chat.
type Navigator struct {
	page  Page
	sel   Selectors
	pause pauseFunc
}

func NewNavigator(page Page, sel Selectors, pause pauseFunc) *Navigator {
	if pause == nil {
		pause = randomPause
	}
	return &Navigator{page: page, sel: sel, pause: pause}
}

// DismissPopup clicks away the passkey prompt if it shows up. Its absence
// is not an error.
func (n *Navigator) DismissPopup(ctx context.Context) {
	Log("info", "Checking for the 'passkey' creation popup...")
	button := n.sel.PasskeyPopupButton

	if err := n.page.WaitClickable(ctx, button, popupTimeout); err != nil {
		Log("info", "Passkey popup did not appear or was already gone, continuing...")
		return
	}

	Log("info", "Passkey popup found. Clicking 'Maybe later'...")
	if err := n.page.Click(ctx, button); err != nil {
		Logf("warn", "An error occurred while handling the passkey popup: %v", err)
		return
	}
	if err := n.page.WaitGone(ctx, button, popupTimeout); err != nil {
		Logf("warn", "Passkey popup still visible after click: %v", err)
		return
	}
	Log("info", "Passkey popup dismissed successfully.")
}

// WaitForConversations blocks until at least one conversation row exists.
func (n *Navigator) WaitForConversations(ctx context.Context) error {
	Logf("info", "Waiting for message list container (%s)...", n.sel.MessageListContainer)
	if err := n.page.WaitPresent(ctx, n.sel.MessageListContainer, listContainerTimeout); err != nil {
		Log("warn", "Message list container not found. This might cause issues.")
	} else {
		Log("info", "Message list container loaded.")
	}

	Logf("info", "Waiting for conversation items (%s)...", n.sel.ConversationItem)
	if err := n.page.WaitPresent(ctx, n.sel.ConversationItem, conversationTimeout); err != nil {
		Logf("error", "Timeout waiting for conversation items (%s).", n.sel.ConversationItem)
		n.dumpPage(ctx)
		return fmt.Errorf("%w: %v", ErrConversationsUnavailable, err)
	}
	return nil
}

// dumpPage logs a text rendering of the current page to help spot selector drift.
func (n *Navigator) dumpPage(ctx context.Context) {
	html, err := n.page.HTML(ctx)
	if err != nil {
		Logf("debug", "Could not capture page HTML: %v", err)
		return
	}
	text, err := html2text.FromString(html, html2text.Options{OmitLinks: true})
	if err != nil {
		Logf("debug", "Could not render page HTML as text: %v", err)
		return
	}
	if len(text) > pageDumpLimit {
		text = text[:pageDumpLimit] + "..."
	}
	Logf("debug", "Page content at failure:\n%s", text)
}

// FindConversation scans the rendered rows once and returns the first whose
// nickname equals username, ignoring case. It returns nil when none match.
func (n *Navigator) FindConversation(ctx context.Context, username string) (*cdp.Node, error) {
	Logf("info", "Searching for conversation with '%s'...", username)
	n.pause(ctx, 2*time.Second, 4*time.Second)

	rows, err := n.page.Nodes(ctx, n.sel.ConversationItem)
	if err != nil {
		return nil, fmt.Errorf("list conversation items: %w", err)
	}
	Logf("info", "Found %d conversation items.", len(rows))

	for i, row := range rows {
		nickname, err := n.page.NodeText(ctx, row, n.sel.NicknameInsideItem)
		switch {
		case errors.Is(err, ErrNoNickname):
			Logf("debug", "Item #%d does not contain a nickname.", i+1)
			continue
		case errors.Is(err, ErrStaleNode):
			Logf("warn", "Stale element reference for item #%d. Skipping it and continuing search.", i+1)
			continue
		case err != nil:
			Logf("error", "Error processing conversation item #%d: %v", i+1, err)
			continue
		}

		nickname = strings.TrimSpace(nickname)
		Logf("debug", "Item #%d: found nickname '%s'", i+1, nickname)
		if strings.EqualFold(nickname, username) {
			Logf("info", "Found '%s' at item #%d.", username, i+1)
			return row, nil
		}
	}

	Logf("warn", "'%s' not found in the %d items.", username, len(rows))
	return nil, nil
}

// OpenConversation clicks a row found by FindConversation.
func (n *Navigator) OpenConversation(ctx context.Context, row *cdp.Node) error {
	if err := n.page.ScrollNodeIntoView(ctx, row); err != nil {
		return fmt.Errorf("scroll conversation into view: %w", err)
	}
	n.pause(ctx, 500*time.Millisecond, 500*time.Millisecond)
	if err := n.page.ClickNode(ctx, row); err != nil {
		return fmt.Errorf("click conversation: %w", err)
	}
	n.pause(ctx, 3*time.Second, 5*time.Second)
	return nil
}

// SendMessage types text into the open chat and submits it.
func (n *Navigator) SendMessage(ctx context.Context, text string) error {
	Log("info", "Attempting to send message in the open chat...")

	if err := n.page.WaitGone(ctx, n.sel.Toast, toastTimeout); err != nil {
		Log("debug", "Toast notification not found or did not disappear in time.")
	}

	Logf("info", "Waiting for the click target area (%s)", n.sel.ClickTarget)
	if err := n.page.WaitClickable(ctx, n.sel.ClickTarget, clickTargetTimeout); err != nil {
		return fmt.Errorf("could not find clickable target: %w", err)
	}

	err := tryStrategies(ctx, "Click on compose area",
		strategy{name: "native click", do: func(ctx context.Context) error {
			if err := n.page.ScrollIntoView(ctx, n.sel.ClickTarget); err != nil {
				return err
			}
			n.pause(ctx, 500*time.Millisecond, 500*time.Millisecond)
			return n.page.Click(ctx, n.sel.ClickTarget)
		}},
		strategy{name: "scripted click", do: func(ctx context.Context) error {
			if err := n.page.ScrollIntoView(ctx, n.sel.ClickTarget); err != nil {
				return err
			}
			n.pause(ctx, 300*time.Millisecond, 300*time.Millisecond)
			return n.page.ScriptClick(ctx, n.sel.ClickTarget)
		}},
	)
	if err != nil {
		return err
	}
	n.pause(ctx, 1500*time.Millisecond, 2500*time.Millisecond)

	Logf("info", "Waiting for the write target area (%s)...", n.sel.WriteTarget)
	if err := n.page.WaitVisible(ctx, n.sel.WriteTarget, writeTargetTimeout); err != nil {
		return fmt.Errorf("could not find the write target area after clicking: %w", err)
	}
	if err := n.page.Focus(ctx, n.sel.WriteTarget); err != nil {
		Logf("warn", "Could not focus write target area (may be okay): %v", err)
	} else {
		n.pause(ctx, 500*time.Millisecond, 500*time.Millisecond)
	}

	Logf("info", "Sending keys to write target: '%s'", text)
	err = tryStrategies(ctx, "Message entry",
		strategy{name: "keystrokes", do: func(ctx context.Context) error {
			if err := n.page.WaitClickable(ctx, n.sel.WriteTarget, typeReadyTimeout); err != nil {
				return err
			}
			if err := n.page.TypeText(ctx, n.sel.WriteTarget, text); err != nil {
				return err
			}
			n.pause(ctx, 800*time.Millisecond, 1500*time.Millisecond)
			return n.page.PressEnter(ctx)
		}},
		strategy{name: "scripted text", do: func(ctx context.Context) error {
			if err := n.page.SetText(ctx, n.sel.WriteTarget, text); err != nil {
				return err
			}
			n.pause(ctx, 500*time.Millisecond, 1000*time.Millisecond)
			return n.page.PressEnter(ctx)
		}},
	)
	if err != nil {
		return err
	}

	Log("info", "Message sent (Enter key pressed).")
	n.pause(ctx, 2*time.Second, 4*time.Second)
	return nil
}
