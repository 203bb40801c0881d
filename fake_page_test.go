package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
)

var errFake = errors.New("fake failure")

func noPause(context.Context, time.Duration, time.Duration) {}

type fakeRow struct {
	nickname   string
	stale      bool
	noNickname bool
}

// fakePage is an in-memory Page. Selectors listed in missing never appear;
// operations listed in fail return errFake ("op:selector", or "op" for
// selector-less operations).
type fakePage struct {
	sel     Selectors
	rows    []fakeRow
	missing map[string]bool
	fail    map[string]bool
	navFail int

	navigated []string
	cookies   []InstallCookie
	clicked   []cdp.NodeID
	typed     []string
	scripted  []string
	enters    int
}

func newFakePage(sel Selectors, nicknames ...string) *fakePage {
	p := &fakePage{
		sel: sel,
		missing: map[string]bool{
			sel.Toast:              true,
			sel.PasskeyPopupButton: true,
		},
		fail: map[string]bool{},
	}
	for _, name := range nicknames {
		p.rows = append(p.rows, fakeRow{nickname: name})
	}
	return p
}

func (p *fakePage) check(op, sel string) error {
	if p.fail[op+":"+sel] || p.fail[op] {
		return fmt.Errorf("%s %s: %w", op, sel, errFake)
	}
	return nil
}

func (p *fakePage) present(sel string) error {
	if p.missing[sel] {
		return fmt.Errorf("waiting for %s: %w", sel, context.DeadlineExceeded)
	}
	if sel == p.sel.ConversationItem && len(p.rows) == 0 {
		return fmt.Errorf("waiting for %s: %w", sel, context.DeadlineExceeded)
	}
	return nil
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	if p.navFail > 0 {
		p.navFail--
		return errFake
	}
	p.navigated = append(p.navigated, url)
	return nil
}

func (p *fakePage) WaitPresent(ctx context.Context, sel string, timeout time.Duration) error {
	return p.present(sel)
}

func (p *fakePage) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	return p.present(sel)
}

func (p *fakePage) WaitClickable(ctx context.Context, sel string, timeout time.Duration) error {
	return p.present(sel)
}

func (p *fakePage) WaitGone(ctx context.Context, sel string, timeout time.Duration) error {
	if p.missing[sel] {
		return nil
	}
	return context.DeadlineExceeded
}

func (p *fakePage) Nodes(ctx context.Context, sel string) ([]*cdp.Node, error) {
	if sel != p.sel.ConversationItem {
		return nil, nil
	}
	nodes := make([]*cdp.Node, len(p.rows))
	for i := range p.rows {
		nodes[i] = &cdp.Node{NodeID: cdp.NodeID(i + 1)}
	}
	return nodes, nil
}

func (p *fakePage) NodeText(ctx context.Context, node *cdp.Node, xpath string) (string, error) {
	i := int(node.NodeID) - 1
	if i < 0 || i >= len(p.rows) {
		return "", ErrStaleNode
	}
	row := p.rows[i]
	switch {
	case row.stale:
		return "", ErrStaleNode
	case row.noNickname:
		return "", ErrNoNickname
	}
	return "  " + row.nickname + "\n", nil
}

func (p *fakePage) ScrollNodeIntoView(ctx context.Context, node *cdp.Node) error {
	return nil
}

func (p *fakePage) ClickNode(ctx context.Context, node *cdp.Node) error {
	p.clicked = append(p.clicked, node.NodeID)
	return nil
}

func (p *fakePage) ScrollIntoView(ctx context.Context, sel string) error {
	return p.check("scroll", sel)
}

func (p *fakePage) Click(ctx context.Context, sel string) error {
	return p.check("click", sel)
}

func (p *fakePage) ScriptClick(ctx context.Context, sel string) error {
	return p.check("scriptclick", sel)
}

func (p *fakePage) Focus(ctx context.Context, sel string) error {
	return p.check("focus", sel)
}

func (p *fakePage) TypeText(ctx context.Context, sel, text string) error {
	if err := p.check("type", sel); err != nil {
		return err
	}
	p.typed = append(p.typed, text)
	return nil
}

func (p *fakePage) SetText(ctx context.Context, sel, text string) error {
	if err := p.check("settext", sel); err != nil {
		return err
	}
	p.scripted = append(p.scripted, text)
	return nil
}

func (p *fakePage) PressEnter(ctx context.Context) error {
	if err := p.check("enter", ""); err != nil {
		return err
	}
	p.enters++
	return nil
}

func (p *fakePage) SetCookie(ctx context.Context, c InstallCookie) error {
	if err := p.check("cookie", c.Name); err != nil {
		return err
	}
	p.cookies = append(p.cookies, c)
	return nil
}

func (p *fakePage) HTML(ctx context.Context) (string, error) {
	return "<html><body><h1>Log in to TikTok</h1></body></html>", nil
}

// fakeSessions hands the same fake page to every session.
type fakeSessions struct {
	page   Page
	opened int
	err    error
}

func (s *fakeSessions) WithSession(ctx context.Context, fn func(ctx context.Context, page Page) error) error {
	s.opened++
	if s.err != nil {
		return s.err
	}
	return fn(ctx, s.page)
}
