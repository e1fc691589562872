package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/webshot/config"
	"github.com/ysmood/gson"
)

// RodLauncher launches a fresh Chromium per session through go-rod.
type RodLauncher struct {
	cfg config.BrowserConfig
}

// NewRodLauncher returns a launcher using cfg for binary, proxy, sandbox and
// user agent settings.
func NewRodLauncher(cfg config.BrowserConfig) *RodLauncher {
	return &RodLauncher{cfg: cfg}
}

// Launch starts Chromium, connects to it and opens the page used for the
// capture. Anything started before a failure is torn down again. The session
// is not bound to ctx; its owner ends it with Close.
func (r *RodLauncher) Launch(ctx context.Context, opts Options) (Session, error) {
	l := launcher.New().
		Headless(opts.Headless).
		NoSandbox(r.cfg.NoSandbox)

	if r.cfg.BrowserBin != "" {
		l = l.Bin(r.cfg.BrowserBin)
	}
	if r.cfg.Proxy != "" {
		l = l.Proxy(r.cfg.Proxy)
	}

	// ── Rendering stability flags ───────────────────────────────────
	l.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", opts.Width, opts.Height))
	l.Set(flags.Flag("force-device-scale-factor"), "1")
	l.Set(flags.Flag("disable-gpu"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("hide-scrollbars"))
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	if r.cfg.UserAgent != "" {
		l.Set(flags.Flag("user-agent"), r.cfg.UserAgent)
	}

	controlURL, err := l.Launch()
	if err != nil {
		l.Kill()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	slog.Debug("browser launched", "controlURL", controlURL)

	// NoDefaultDevice keeps rod from emulating its laptop preset, so the
	// viewport follows --window-size.
	b := rod.New().ControlURL(controlURL).NoDefaultDevice()
	if err := b.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	s := &rodSession{launcher: l, browser: b}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	s.page = page

	if err := s.prepare(opts); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	router   *rod.HijackRouter

	closeOnce sync.Once
	closeErr  error
}

// prepare installs everything that must be in place before navigation:
// stealth scripts, extra headers and the ad-blocking router.
func (s *rodSession) prepare(opts Options) error {
	if opts.Stealth {
		if _, err := s.page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", err,
			)
		}
	}

	if len(opts.Headers) > 0 {
		if err := (proto.NetworkEnable{}).Call(s.page); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := (proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(opts.Headers),
		}).Call(s.page); err != nil {
			return fmt.Errorf("set extra headers: %w", err)
		}
	}

	if opts.BlockAds {
		s.router = blockAds(s.page)
	}
	return nil
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitLoad()
}

func (s *rodSession) ReadyState(ctx context.Context) (string, error) {
	res, err := s.page.Context(ctx).Eval(`() => document.readyState`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (s *rodSession) Info(ctx context.Context) (string, string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", "", err
	}
	return info.Title, info.URL, nil
}

func (s *rodSession) HTML(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

func (s *rodSession) Screenshot(ctx context.Context) ([]byte, error) {
	return s.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

func (s *rodSession) ContentSize(ctx context.Context) (float64, float64, error) {
	metrics, err := proto.PageGetLayoutMetrics{}.Call(s.page.Context(ctx))
	if err != nil {
		return 0, 0, err
	}
	size := metrics.CSSContentSize
	if size == nil {
		size = metrics.ContentSize
	}
	if size == nil {
		return 0, 0, fmt.Errorf("layout metrics carry no content size")
	}
	return size.Width, size.Height, nil
}

func (s *rodSession) OverrideViewport(ctx context.Context, width, height int) error {
	return proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
		Mobile:            false,
	}.Call(s.page.Context(ctx))
}

func (s *rodSession) ClearViewport(ctx context.Context) error {
	return proto.EmulationClearDeviceMetricsOverride{}.Call(s.page.Context(ctx))
}

func (s *rodSession) CaptureClip(ctx context.Context, width, height float64) ([]byte, error) {
	res, err := proto.PageCaptureScreenshot{
		Format:                proto.PageCaptureScreenshotFormatPng,
		CaptureBeyondViewport: true,
		Clip: &proto.PageViewport{
			X:      0,
			Y:      0,
			Width:  width,
			Height: height,
			Scale:  1,
		},
	}.Call(s.page.Context(ctx))
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// Close stops the hijack router, closes the browser over CDP, then kills the
// process and removes its user-data dir. The first error is returned; the
// remaining steps still run.
func (s *rodSession) Close() error {
	s.closeOnce.Do(func() {
		if s.router != nil {
			if err := s.router.Stop(); err != nil {
				s.closeErr = err
			}
		}
		if err := s.browser.Close(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
		s.launcher.Kill()
		s.launcher.Cleanup()
	})
	return s.closeErr
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
