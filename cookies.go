package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"golang.org/x/net/publicsuffix"
)

var (
	ErrCookieFile         = errors.New("cookie file unusable")
	ErrNoCookiesInstalled = errors.New("no cookies were added")
)

const (
	SameSiteLax    = "Lax"
	SameSiteStrict = "Strict"
	SameSiteNone   = "None"
)

// InstallCookie is a cookie export entry reduced to what the browser accepts.
// Empty SameSite and nil Expires mean the attribute is omitted.
type InstallCookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
	Expires  *time.Time
	SameSite string
}

type CookieReport struct {
	Total     int
	Installed int
	Failed    int
}

func (r CookieReport) Success() bool {
	return r.Installed > 0
}

// SiteTargets derives the site root to load before installing cookies and the
// default cookie domain (".tiktok.com" for a www.tiktok.com messages URL).
func SiteTargets(messagesURL string) (siteRoot, cookieDomain string, err error) {
	u, err := url.Parse(messagesURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid messages URL %q: %w", messagesURL, err)
	}
	host := u.Hostname()
	if u.Scheme == "" || host == "" {
		return "", "", fmt.Errorf("invalid messages URL %q: missing scheme or host", messagesURL)
	}

	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		registrable = host
	}
	return u.Scheme + "://" + u.Host + "/", "." + registrable, nil
}

// LoadCookieFile reads a browser cookie export. Only the top level must be an
// array; each entry is checked when it is installed.
func LoadCookieFile(path string) ([]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: cookie file not found: %s", ErrCookieFile, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrCookieFile, err)
	}

	var cookies []any
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("%w: cookie file is not valid JSON: %s: %v", ErrCookieFile, path, err)
	}
	return cookies, nil
}

// NormalizeCookie copies the recognised attributes of one exported cookie.
// Only a missing name or value is an error; bad optional fields are dropped.
func NormalizeCookie(raw map[string]any, defaultDomain string) (InstallCookie, error) {
	var c InstallCookie

	name, err := cast.ToStringE(raw["name"])
	if err != nil || name == "" {
		return c, errors.New("cookie has no name")
	}
	value, ok := raw["value"]
	if !ok || value == nil {
		return c, fmt.Errorf("cookie '%s' has no value", name)
	}
	c.Name = name
	c.Value = cast.ToString(value)

	if v, ok := raw["path"]; ok && v != nil {
		c.Path = cast.ToString(v)
	}
	if v, ok := raw["domain"]; ok && v != nil {
		c.Domain = cast.ToString(v)
	}
	if v, ok := raw["secure"]; ok && v != nil {
		c.Secure = cast.ToBool(v)
	}
	if v, ok := raw["httpOnly"]; ok && v != nil {
		c.HTTPOnly = cast.ToBool(v)
	}

	if v, ok := raw["expirationDate"]; ok && v != nil {
		seconds, err := cast.ToFloat64E(v)
		switch {
		case err != nil:
			Logf("debug", "Cookie '%s' has invalid expirationDate %v. Skipping expiry.", name, v)
		case seconds > 0:
			expires := time.Unix(int64(seconds), 0)
			c.Expires = &expires
		}
	}

	if v, present := raw["sameSite"]; present {
		c.SameSite = normalizeSameSite(name, v, c.Secure)
	}

	if c.Domain == "" {
		c.Domain = defaultDomain
	}
	return c, nil
}

// normalizeSameSite never yields None for an insecure cookie, since
// browsers reject that combination.
func normalizeSameSite(name string, v any, secure bool) string {
	if v != nil {
		s, _ := v.(string)
		switch strings.ToLower(s) {
		case "lax":
			return SameSiteLax
		case "strict":
			return SameSiteStrict
		case "none", "no_restriction":
		default:
			Logf("debug", "Cookie '%s' has unknown sameSite value %v. Skipping SameSite.", name, v)
			return ""
		}
	}
	if secure {
		return SameSiteNone
	}
	Logf("debug", "Cookie '%s' SameSite=None/null but not secure. Skipping SameSite.", name)
	return ""
}

// InjectCookies opens the site root so cookies can be set for its origin,
// then installs every usable cookie from path.
func InjectCookies(ctx context.Context, page Page, path, siteRoot, defaultDomain string, pause pauseFunc) (CookieReport, error) {
	var report CookieReport
	Logf("info", "Loading cookies from '%s'...", path)

	cookies, err := LoadCookieFile(path)
	if err != nil {
		Logf("error", "%v", err)
		return report, err
	}
	report.Total = len(cookies)
	Logf("info", "Read %d cookies from file.", report.Total)

	if err := navigateWithRetry(ctx, page, siteRoot); err != nil {
		return report, fmt.Errorf("failed to open %s before adding cookies: %w", siteRoot, err)
	}
	Logf("info", "Navigated to main domain %s. Waiting before adding cookies...", siteRoot)
	pause(ctx, 3*time.Second, 5*time.Second)

	for i, entry := range cookies {
		raw, ok := entry.(map[string]any)
		if !ok {
			report.Failed++
			Logf("warn", "Failed to add cookie #%d: entry is not an object: %v", i+1, entry)
			continue
		}
		cookie, err := NormalizeCookie(raw, defaultDomain)
		if err != nil {
			report.Failed++
			Logf("warn", "Failed to add cookie #%d: %v", i+1, err)
			continue
		}
		Logf("debug", "Attempting to add cookie #%d: %s (domain %s)", i+1, cookie.Name, cookie.Domain)
		if err := page.SetCookie(ctx, cookie); err != nil {
			report.Failed++
			Logf("warn", "Failed to add cookie #%d ('%s'): %v", i+1, cookie.Name, err)
			continue
		}
		report.Installed++
	}

	if report.Failed > 0 {
		Logf("warn", "%d cookies failed to load.", report.Failed)
	}
	if !report.Success() {
		Log("error", "No cookies were added!")
		return report, fmt.Errorf("%w (%d read, %d failed)", ErrNoCookiesInstalled, report.Total, report.Failed)
	}
	Logf("info", "Successfully added %d cookies.", report.Installed)
	return report, nil
}
