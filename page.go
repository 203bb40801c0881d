package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/go-json-experiment/json"
)

var (
	ErrNodeNotFound = errors.New("no element matches selector")
	ErrStaleNode    = errors.New("element is no longer attached to the document")
	ErrNoNickname   = errors.New("element has no nickname child")
)

// Page is the slice of browser behaviour the bot relies on. Selectors are
// XPath expressions; every wait is bounded by its own timeout.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitPresent(ctx context.Context, sel string, timeout time.Duration) error
	WaitVisible(ctx context.Context, sel string, timeout time.Duration) error
	WaitClickable(ctx context.Context, sel string, timeout time.Duration) error
	WaitGone(ctx context.Context, sel string, timeout time.Duration) error

	Nodes(ctx context.Context, sel string) ([]*cdp.Node, error)
	NodeText(ctx context.Context, node *cdp.Node, xpath string) (string, error)
	ScrollNodeIntoView(ctx context.Context, node *cdp.Node) error
	ClickNode(ctx context.Context, node *cdp.Node) error

	ScrollIntoView(ctx context.Context, sel string) error
	Click(ctx context.Context, sel string) error
	ScriptClick(ctx context.Context, sel string) error
	Focus(ctx context.Context, sel string) error
	TypeText(ctx context.Context, sel, text string) error
	SetText(ctx context.Context, sel, text string) error
	PressEnter(ctx context.Context) error

	SetCookie(ctx context.Context, c InstallCookie) error
	HTML(ctx context.Context) (string, error)
}

const (
	actionTimeout = 10 * time.Second

	nodeTextJS = `function(xp) {
	const n = document.evaluate(xp, this, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	if (!n) return null;
	return n.innerText !== undefined ? n.innerText : n.textContent;
}`
	waitGoneJS = `(xp) => {
	const n = document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	return !n || n.offsetParent === null;
}`
	scriptClickJS    = `function() { this.click(); }`
	scrollIntoViewJS = `function() { this.scrollIntoView(true); }`
	focusJS          = `function() { this.focus(); }`
	setTextJS        = `function(t) { this.textContent = t; this.focus(); }`
)

// chromePage drives the tab bound to the chromedp context passed to each call.
type chromePage struct{}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return chromedp.Run(ctx, chromedp.Navigate(url))
}

func (p *chromePage) WaitPresent(ctx context.Context, sel string, timeout time.Duration) error {
	return runWithTimeout(ctx, timeout, chromedp.WaitReady(sel, chromedp.BySearch))
}

func (p *chromePage) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	return runWithTimeout(ctx, timeout, chromedp.WaitVisible(sel, chromedp.BySearch))
}

func (p *chromePage) WaitClickable(ctx context.Context, sel string, timeout time.Duration) error {
	return runWithTimeout(ctx, timeout,
		chromedp.WaitVisible(sel, chromedp.BySearch),
		chromedp.WaitEnabled(sel, chromedp.BySearch),
	)
}

func (p *chromePage) WaitGone(ctx context.Context, sel string, timeout time.Duration) error {
	var gone bool
	return runWithTimeout(ctx, timeout+time.Second,
		chromedp.PollFunction(waitGoneJS, &gone,
			chromedp.WithPollingArgs(sel),
			chromedp.WithPollingTimeout(timeout),
		),
	)
}

func (p *chromePage) Nodes(ctx context.Context, sel string) ([]*cdp.Node, error) {
	var nodes []*cdp.Node
	err := runWithTimeout(ctx, actionTimeout, chromedp.Nodes(sel, &nodes, chromedp.BySearch, chromedp.AtLeast(0)))
	return nodes, err
}

func (p *chromePage) NodeText(ctx context.Context, node *cdp.Node, xpath string) (string, error) {
	value, err := callOnNode(ctx, node, nodeTextJS, xpath)
	if err != nil {
		return "", err
	}
	if len(value) == 0 || string(value) == "null" {
		return "", ErrNoNickname
	}
	var text string
	if err := json.Unmarshal(value, &text); err != nil {
		return "", fmt.Errorf("decode node text: %w", err)
	}
	return text, nil
}

func (p *chromePage) ScrollNodeIntoView(ctx context.Context, node *cdp.Node) error {
	if err := chromedp.Run(ctx, dom.ScrollIntoViewIfNeeded().WithNodeID(node.NodeID)); err != nil {
		return fmt.Errorf("%w: %v", ErrStaleNode, err)
	}
	return nil
}

func (p *chromePage) ClickNode(ctx context.Context, node *cdp.Node) error {
	return runWithTimeout(ctx, actionTimeout, chromedp.MouseClickNode(node))
}

func (p *chromePage) ScrollIntoView(ctx context.Context, sel string) error {
	return callOnSelector(ctx, sel, scrollIntoViewJS)
}

func (p *chromePage) Click(ctx context.Context, sel string) error {
	return runWithTimeout(ctx, actionTimeout, chromedp.Click(sel, chromedp.BySearch, chromedp.NodeVisible))
}

func (p *chromePage) ScriptClick(ctx context.Context, sel string) error {
	return callOnSelector(ctx, sel, scriptClickJS)
}

func (p *chromePage) Focus(ctx context.Context, sel string) error {
	return callOnSelector(ctx, sel, focusJS)
}

func (p *chromePage) TypeText(ctx context.Context, sel, text string) error {
	return runWithTimeout(ctx, actionTimeout, chromedp.SendKeys(sel, text, chromedp.BySearch))
}

func (p *chromePage) SetText(ctx context.Context, sel, text string) error {
	return callOnSelector(ctx, sel, setTextJS, text)
}

// PressEnter sends Enter to whichever element has focus.
func (p *chromePage) PressEnter(ctx context.Context) error {
	return runWithTimeout(ctx, actionTimeout, chromedp.KeyEvent(kb.Enter))
}

func (p *chromePage) SetCookie(ctx context.Context, c InstallCookie) error {
	params := network.SetCookie(c.Name, c.Value).
		WithDomain(c.Domain).
		WithSecure(c.Secure).
		WithHTTPOnly(c.HTTPOnly)
	if c.Path != "" {
		params = params.WithPath(c.Path)
	}
	if c.Expires != nil {
		expires := cdp.TimeSinceEpoch(*c.Expires)
		params = params.WithExpires(&expires)
	}
	switch c.SameSite {
	case SameSiteLax:
		params = params.WithSameSite(network.CookieSameSiteLax)
	case SameSiteStrict:
		params = params.WithSameSite(network.CookieSameSiteStrict)
	case SameSiteNone:
		params = params.WithSameSite(network.CookieSameSiteNone)
	}
	return runWithTimeout(ctx, actionTimeout, params)
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var html string
	err := runWithTimeout(ctx, actionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func runWithTimeout(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return chromedp.Run(tctx, actions...)
}

func callOnSelector(ctx context.Context, sel, fn string, args ...any) error {
	var nodes []*cdp.Node
	if err := runWithTimeout(ctx, actionTimeout, chromedp.Nodes(sel, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return err
	}
	if len(nodes) == 0 {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, sel)
	}
	_, err := callOnNode(ctx, nodes[0], fn, args...)
	return err
}

// callOnNode runs fn with the node bound to `this` and returns the
// JSON-encoded result.
func callOnNode(ctx context.Context, node *cdp.Node, fn string, args ...any) ([]byte, error) {
	var out []byte
	err := runWithTimeout(ctx, actionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithNodeID(node.NodeID).Do(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStaleNode, err)
		}

		callArgs := make([]*cdpruntime.CallArgument, 0, len(args))
		for _, arg := range args {
			encoded, err := json.Marshal(arg)
			if err != nil {
				return fmt.Errorf("encode argument: %w", err)
			}
			callArgs = append(callArgs, &cdpruntime.CallArgument{Value: encoded})
		}

		res, exp, err := cdpruntime.CallFunctionOn(fn).
			WithObjectID(obj.ObjectID).
			WithArguments(callArgs).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exp != nil {
			return exp
		}
		if res != nil {
			out = res.Value
		}
		return nil
	}))
	return out, err
}
