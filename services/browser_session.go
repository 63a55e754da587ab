package services

import (
	"fmt"
	"log"
	"math/rand"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// BrowserSession owns one Playwright browser for the lifetime of an
// application attempt. Sessions are not goroutine-safe; the batch layer gives
// each worker its own.
type BrowserSession struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page

	opts        BrowserSessionOptions
	pageTimeout float64
}

type BrowserSessionOptions struct {
	Headless       bool
	PageTimeoutMS  float64
	SlowMoMS       float64
	ExtraArguments []string
}

// NewBrowserSession starts Playwright and launches Chromium.
func NewBrowserSession(opts BrowserSessionOptions) (*BrowserSession, error) {
	timeout := opts.PageTimeoutMS
	if timeout <= 0 {
		timeout = 30000
	}
	s := &BrowserSession{opts: opts, pageTimeout: timeout}
	if err := s.launch(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *BrowserSession) launch() error {
	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	args := []string{
		"--no-sandbox",
		"--disable-blink-features=AutomationControlled",
		"--disable-extensions",
		"--disable-plugins-discovery",
	}
	args = append(args, s.opts.ExtraArguments...)

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(s.opts.Headless),
		Args:     args,
	}
	if s.opts.SlowMoMS > 0 {
		launch.SlowMo = playwright.Float(s.opts.SlowMoMS)
	}
	browser, err := pw.Chromium.Launch(launch)
	if err != nil {
		pw.Stop()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	page, err := browser.NewPage()
	if err != nil {
		browser.Close()
		pw.Stop()
		return fmt.Errorf("failed to create browser page: %w", err)
	}

	s.pw = pw
	s.browser = browser
	s.page = page
	return nil
}

// Restart tears the browser down and launches a fresh one with the same
// options. The old page is gone; callers must renavigate.
func (s *BrowserSession) Restart() error {
	s.Close()
	return s.launch()
}

func (s *BrowserSession) Page() playwright.Page {
	return s.page
}

// Navigate loads a URL and waits for DOMContentLoaded.
func (s *BrowserSession) Navigate(url string) error {
	log.Printf("Navigating to %s", truncate(url, 120))
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(s.pageTimeout),
	})
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", truncate(url, 120), err)
	}
	// Late-hydrating SPAs need a beat after DOMContentLoaded.
	s.page.WaitForTimeout(1500)
	return nil
}

const (
	actionDelayMinMS = 1200
	actionDelayMaxMS = 2800
)

// actionDelayMS picks a pause within the action-delay window. A fixed cadence
// reads as automation to bot detectors.
func actionDelayMS() float64 {
	return float64(actionDelayMinMS + rand.Intn(actionDelayMaxMS-actionDelayMinMS+1))
}

// WaitAfterAction pauses long enough for a page transition or async
// validation kicked off by a click.
func (s *BrowserSession) WaitAfterAction() {
	s.page.WaitForTimeout(actionDelayMS())
}

// Close shuts the browser down. Safe to call more than once.
func (s *BrowserSession) Close() {
	if s.browser != nil {
		if err := s.browser.Close(); err != nil && !IsBrowserClosedErr(err) {
			log.Printf("Browser close error: %v", err)
		}
		s.browser = nil
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			log.Printf("Playwright stop error: %v", err)
		}
		s.pw = nil
	}
}

var browserClosedMarkers = []string{
	"target page, context or browser has been closed",
	"page has been closed",
	"browser has been closed",
	"connection closed",
}

// IsBrowserClosedErr reports whether an error means the browser died or was
// closed underneath us, which terminates the attempt as a crash rather than
// a page failure.
func IsBrowserClosedErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range browserClosedMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
