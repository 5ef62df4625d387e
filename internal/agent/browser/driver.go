package browser

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/clovis-agent/clovis/pkg/logger"
)

// knownBrowserExecutables lists local Chromium-family binaries to try, in
// order, after the bundled browser fails to launch headed and headless.
var knownBrowserExecutables = []string{
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/Applications/Brave Browser.app/Contents/MacOS/Brave Browser",
	"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
	"/usr/bin/google-chrome",
	"/usr/bin/google-chrome-stable",
	"/usr/bin/chromium",
	"/usr/bin/chromium-browser",
	"/usr/bin/microsoft-edge",
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "with": true,
	"this": true, "from": true, "open": true, "page": true, "task": true,
	"please": true, "using": true, "into": true, "onto": true,
}

// Driver is the "direct driver" browser backend: navigation-only
// automation over a persistent chromedp browser context, used as the
// rich-automation backend's fallback.
type Driver struct {
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc
	headless    bool
	launched    bool
}

// NewDriver constructs an idle Driver; the underlying browser process is
// launched lazily on first use.
func NewDriver() *Driver {
	return &Driver{}
}

// ensureLaunched starts the shared browser context on first call, trying
// the bundled/headed Chromium, then headless, then each known local
// executable (headed, then headless), recording each attempt's error for
// the final failure message. There is no named-channel launch step.
func (d *Driver) ensureLaunched(ctx context.Context) error {
	if d.launched {
		return nil
	}

	var launchErrors []string
	tryOpts := func(opts ...chromedp.ExecAllocatorOption) (bool, error) {
		allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
		browserCtx, browserCancel := chromedp.NewContext(allocCtx)
		if err := chromedp.Run(browserCtx, chromedp.Navigate("about:blank")); err != nil {
			browserCancel()
			allocCancel()
			return false, err
		}
		d.allocCancel = allocCancel
		d.browserCtx = browserCtx
		d.browserStop = browserCancel
		return true, nil
	}

	base := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	base = append(base, chromedp.Flag("disable-crashpad-for-testing", true))

	for _, headless := range []bool{false, true} {
		opts := append([]chromedp.ExecAllocatorOption{}, base...)
		opts = append(opts, chromedp.Flag("headless", headless))
		if ok, err := tryOpts(opts...); ok {
			d.headless = headless
			d.launched = true
			return nil
		} else {
			launchErrors = append(launchErrors, fmt.Sprintf("bundled chromium headless=%v: %v", headless, err))
		}
	}

	for _, execPath := range knownBrowserExecutables {
		if _, err := os.Stat(execPath); err != nil {
			continue
		}
		for _, headless := range []bool{false, true} {
			opts := append([]chromedp.ExecAllocatorOption{}, base...)
			opts = append(opts, chromedp.ExecPath(execPath), chromedp.Flag("headless", headless))
			if ok, err := tryOpts(opts...); ok {
				d.headless = headless
				d.launched = true
				return nil
			} else {
				launchErrors = append(launchErrors, fmt.Sprintf("executable %s headless=%v: %v", execPath, headless, err))
			}
		}
	}

	if len(launchErrors) > 6 {
		launchErrors = launchErrors[:6]
	}
	return fmt.Errorf("could not launch a Chromium browser; tried bundled browser and local executables: %s", strings.Join(launchErrors, " | "))
}

// Close tears down the shared browser process, if one was launched.
func (d *Driver) Close() {
	if d.browserStop != nil {
		d.browserStop()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
	d.launched = false
}

// Execute runs one navigation-only browser task and returns a human
// summary of what it did.
func (d *Driver) Execute(ctx context.Context, task string, preExtractedURL string) (string, error) {
	if err := d.ensureLaunched(ctx); err != nil {
		return "", err
	}

	directURL := preExtractedURL
	avoidSearch := MustAvoidSearch(task)
	usedSearch := false
	actionMode := "direct_navigation"

	runCtx, cancel := chromedp.NewContext(d.browserCtx)
	defer cancel()

	if IsOpenNewTabTask(task) {
		actionMode = "new_tab"
	}

	switch {
	case actionMode == "new_tab":
		if err := chromedp.Run(runCtx, chromedp.Navigate("about:blank")); err != nil {
			return "", err
		}
	case directURL != "":
		if err := chromedp.Run(runCtx, chromedp.Navigate(directURL)); err != nil {
			return "", err
		}
		actionMode = "direct_navigation"
	case avoidSearch:
		if target, found := d.selectRelevantExistingTarget(runCtx, task); found {
			if err := chromedp.Run(runCtx, chromedp.Navigate(target)); err != nil {
				return "", err
			}
			actionMode = "current_tab_context"
		} else {
			usedSearch = true
		}
	default:
		usedSearch = true
	}

	if usedSearch {
		searchURL := "https://duckduckgo.com/?q=" + url.QueryEscape(TaskToSearchQuery(task))
		if err := chromedp.Run(runCtx, chromedp.Navigate(searchURL)); err != nil {
			return "", err
		}
		d.clickFirstDuckDuckGoResult(runCtx)
		actionMode = "search_fallback"
	}

	time.Sleep(1 * time.Second)

	var finalURL, title string
	if err := chromedp.Run(runCtx,
		chromedp.Location(&finalURL),
		chromedp.Title(&title),
	); err != nil {
		return "", err
	}

	return BuildFallbackSummary(finalURL, title, usedSearch, d.headless, actionMode), nil
}

var duckduckgoResultSelectors = []string{
	"a[data-testid='result-title-a']",
	"a.result__a",
}

func (d *Driver) clickFirstDuckDuckGoResult(ctx context.Context) {
	for _, selector := range duckduckgoResultSelectors {
		timedCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := chromedp.Run(timedCtx, chromedp.Click(selector, chromedp.ByQuery))
		cancel()
		if err == nil {
			loadCtx, loadCancel := context.WithTimeout(ctx, 15*time.Second)
			_ = chromedp.Run(loadCtx, chromedp.WaitVisible("body", chromedp.ByQuery))
			loadCancel()
			return
		}
	}
	logger.Debug().Msg("no duckduckgo result selector matched")
}

// selectRelevantExistingTarget scans open targets' URL/title for
// localhost/127.0.0.1 or a task-derived keyword.
func (d *Driver) selectRelevantExistingTarget(ctx context.Context, task string) (string, bool) {
	targets, err := chromedp.Targets(ctx)
	if err != nil || len(targets) == 0 {
		return "", false
	}

	lowered := strings.ToLower(task)
	keywords := taskKeywords(task)
	wantsLocal := strings.Contains(lowered, "localhost") || strings.Contains(lowered, "127.0.0.1")

	for _, kw := range keywords {
		for _, t := range targets {
			if strings.Contains(strings.ToLower(t.Title), kw) || strings.Contains(strings.ToLower(t.URL), kw) {
				return t.URL, true
			}
		}
	}

	if wantsLocal {
		for _, t := range targets {
			u := strings.ToLower(t.URL)
			if strings.Contains(u, "localhost") || strings.Contains(u, "127.0.0.1") {
				return t.URL, true
			}
		}
	}

	return "", false
}

var nonWordRE = regexp.MustCompile(`[^a-zA-Z0-9]+`)

func taskKeywords(task string) []string {
	var out []string
	for _, w := range strings.Fields(nonWordRE.ReplaceAllString(strings.ToLower(task), " ")) {
		if len(w) > 3 && !stopWords[w] {
			out = append(out, w)
		}
	}
	return out
}
