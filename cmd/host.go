package cmd

import (
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/spf13/viper"

	"github.com/krevetka/krevetka/internal/utils"
	"github.com/krevetka/krevetka/pkg/analytics"
	"github.com/krevetka/krevetka/pkg/content"
	"github.com/krevetka/krevetka/pkg/platform"
	"github.com/krevetka/krevetka/pkg/platform/browser"
	"github.com/krevetka/krevetka/pkg/platform/dev"
	"github.com/krevetka/krevetka/pkg/platform/telegram"
	"github.com/krevetka/krevetka/pkg/platform/vk"
	"github.com/krevetka/krevetka/pkg/storage"
)

// openStore locks and opens the local sqlite store. The returned func
// closes the store and releases the lock.
func openStore() (*storage.DB, func(), error) {
	path, err := utils.GetAbsStorePath(viper.GetString("storage.path"))
	if err != nil {
		return nil, nil, fmt.Errorf("could not resolve store path: %w", err)
	}
	lock, err := utils.NewStoreLock(path)
	if err != nil {
		return nil, nil, err
	}
	if err := lock.Lock(); err != nil {
		return nil, nil, err
	}
	db, err := storage.Open(path)
	if err != nil {
		lock.Unlock()
		return nil, nil, fmt.Errorf("could not open store %s: %w", path, err)
	}
	utils.Log.Debugf("using store %s", path)
	return db, func() {
		if err := db.Close(); err != nil {
			utils.Log.Warnf("closing store: %v", err)
		}
		if err := lock.Unlock(); err != nil {
			utils.Log.Warnf("releasing store lock: %v", err)
		}
	}, nil
}

func loadCatalog() (*content.Catalog, error) {
	path := viper.GetString("content.path")
	if path == "" {
		return content.Default(), nil
	}
	cat, err := content.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not load content from %s: %w", path, err)
	}
	return cat, nil
}

// resolveProfile honors a forced platform, then falls back to detection
// from the launch URL and referrer.
func resolveProfile(launchURL, referrer string) (platform.Profile, error) {
	if forced := viper.GetString("platform"); forced != "" {
		p, ok := platform.ParseProfile(forced)
		if !ok {
			return "", fmt.Errorf("unknown platform %q", forced)
		}
		return p, nil
	}
	return platform.Detect(platform.EnvironmentFromURL(launchURL, referrer)), nil
}

func launchQuery(launchURL string) string {
	u, err := url.Parse(launchURL)
	if err != nil {
		return ""
	}
	return u.RawQuery
}

// newHost builds the driver for profile. A terminal has no VK bridge or
// Telegram WebApp, so those two run degraded: VK keeps state in memory
// only and Telegram falls back to the local store.
func newHost(profile platform.Profile, db *storage.DB, launchURL string, out io.Writer) platform.Host {
	switch profile {
	case platform.VK:
		return vk.New(nil, vk.Config{
			AppURL:      viper.GetString("vk.app_url"),
			LaunchQuery: launchQuery(launchURL),
		})
	case platform.Telegram:
		cfg := telegram.Config{
			BotUsername:     viper.GetString("telegram.bot_username"),
			InvoiceEndpoint: viper.GetString("invoice.endpoint"),
		}
		if db != nil {
			cfg.Fallback = db
		}
		return telegram.New(nil, nil, cfg)
	case platform.Dev:
		return dev.New()
	}
	cfg := browser.Config{
		Clipboard:   browser.WriterClipboard{W: out},
		LaunchQuery: launchQuery(launchURL),
		AppURL:      viper.GetString("browser.app_url"),
	}
	if db != nil {
		cfg.Store = db
	}
	return browser.New(cfg)
}

func newAdapter(h platform.Host, handshake time.Duration) *platform.Adapter {
	cfg := platform.AdapterConfig{
		HandshakeTimeout: handshake,
		Log:              utils.Log,
	}
	switch h.Profile() {
	case platform.VK:
		cfg.AdminIDs = adminIDs("vk.admin_ids", vk.DefaultAdminIDs)
	case platform.Telegram:
		cfg.AdminIDs = adminIDs("telegram.admin_ids", telegram.DefaultAdminIDs)
	}
	return platform.NewAdapter(h, cfg)
}

func adminIDs(key string, fallback []string) []string {
	if ids := viper.GetStringSlice(key); len(ids) > 0 {
		return ids
	}
	return fallback
}

// newTracker returns nil when remote analytics are disabled.
func newTracker(profile platform.Profile) *analytics.Tracker {
	endpoint := viper.GetString("analytics.endpoint")
	if !viper.GetBool("analytics.enabled") || endpoint == "" {
		return nil
	}
	return analytics.NewTracker(analytics.TrackerConfig{
		Endpoint: endpoint,
		Platform: string(profile),
		Log:      utils.Log,
	})
}
