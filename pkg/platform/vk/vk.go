// Package vk drives the VK Mini Apps runtime through its bridge.
package vk

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/krevetka/krevetka/pkg/platform"
	"github.com/tidwall/gjson"
)

const DefaultAppURL = "https://vk.com/app54437141"

// DefaultAdminIDs are the VK user ids treated as admins.
var DefaultAdminIDs = []string{"123456789", "2635817"}

// Bridge sends one bridge method and returns the raw JSON response.
type Bridge interface {
	Send(ctx context.Context, method string, params map[string]interface{}) ([]byte, error)
}

type Config struct {
	AppURL string
	// LaunchQuery is the raw launch URL query; its vk_* parameters are
	// used when the bridge cannot report launch params.
	LaunchQuery string
}

type Host struct {
	bridge Bridge
	cfg    Config
}

func New(b Bridge, cfg Config) *Host {
	if cfg.AppURL == "" {
		cfg.AppURL = DefaultAppURL
	}
	return &Host{bridge: b, cfg: cfg}
}

func (h *Host) send(ctx context.Context, method string, params map[string]interface{}) (gjson.Result, error) {
	if h.bridge == nil {
		return gjson.Result{}, platform.ErrUnavailable
	}
	raw, err := h.bridge.Send(ctx, method, params)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: %w", method, err)
	}
	if len(raw) == 0 {
		return gjson.Result{}, nil
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("%s: malformed response", method)
	}
	return gjson.ParseBytes(raw), nil
}

func (h *Host) Profile() platform.Profile { return platform.VK }

func (h *Host) Init(ctx context.Context) error {
	_, err := h.send(ctx, "VKWebAppInit", nil)
	return err
}

// Claims reads vk_user_id and vk_viewer_group_role from the bridge,
// falling back to the launch query.
func (h *Host) Claims(ctx context.Context) (platform.Claims, error) {
	var c platform.Claims
	res, err := h.send(ctx, "VKWebAppGetLaunchParams", nil)
	if err == nil {
		c.UserID = res.Get("vk_user_id").String()
		c.Role = res.Get("vk_viewer_group_role").String()
	}
	if c.UserID == "" || c.Role == "" {
		if q, qerr := url.ParseQuery(h.cfg.LaunchQuery); qerr == nil {
			if c.UserID == "" {
				c.UserID = q.Get("vk_user_id")
			}
			if c.Role == "" {
				c.Role = q.Get("vk_viewer_group_role")
			}
		}
	}
	if c.UserID == "" && c.Role == "" && err != nil {
		return c, err
	}
	return c, nil
}

// StorageGet expects {"keys":[{"key":..,"value":..}]}.
func (h *Host) StorageGet(ctx context.Context, keys []string) (map[string]string, error) {
	res, err := h.send(ctx, "VKWebAppStorageGet", map[string]interface{}{"keys": keys})
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	res.Get("keys").ForEach(func(_, item gjson.Result) bool {
		if k := item.Get("key"); k.Type == gjson.String {
			out[k.Str] = item.Get("value").String()
		}
		return true
	})
	return out, nil
}

func (h *Host) StorageSet(ctx context.Context, key, value string) error {
	_, err := h.send(ctx, "VKWebAppStorageSet", map[string]interface{}{"key": key, "value": value})
	return err
}

func (h *Host) Haptic(ctx context.Context, hp platform.Haptic) error {
	var err error
	switch hp.Kind {
	case platform.HapticImpact:
		_, err = h.send(ctx, "VKWebAppTapticImpactOccurred", map[string]interface{}{"style": hp.Value})
	case platform.HapticNotification:
		_, err = h.send(ctx, "VKWebAppTapticNotificationOccurred", map[string]interface{}{"type": hp.Value})
	case platform.HapticSelection:
		_, err = h.send(ctx, "VKWebAppTapticSelectionChanged", nil)
	default:
		err = fmt.Errorf("haptic %q: %w", hp.Kind, platform.ErrNotSupported)
	}
	return err
}

func (h *Host) ShareLink(ctx context.Context, message string, sc platform.ShareContext) (bool, error) {
	params := map[string]interface{}{"link": platform.BuildShareURL(h.cfg.AppURL, sc)}
	if message != "" {
		params["text"] = message
	}
	if _, err := h.send(ctx, "VKWebAppShare", params); err != nil {
		return false, err
	}
	return true, nil
}

// ShareStory tries the rendered image first, then a story without a
// background.
func (h *Host) ShareStory(ctx context.Context, p platform.StoryPayload, sc platform.ShareContext) (bool, error) {
	attachment := map[string]interface{}{
		"text": "go_to",
		"type": "url",
		"url":  platform.BuildShareURL(h.cfg.AppURL, sc),
	}
	var errs []error
	if p.ImageURL != "" {
		_, err := h.send(ctx, "VKWebAppShowStoryBox", map[string]interface{}{
			"background_type": "image",
			"url":             p.ImageURL,
			"attachment":      attachment,
		})
		if err == nil {
			return true, nil
		}
		errs = append(errs, err)
	}
	_, err := h.send(ctx, "VKWebAppShowStoryBox", map[string]interface{}{
		"background_type": "none",
		"attachment":      attachment,
	})
	if err == nil {
		return true, nil
	}
	return false, errors.Join(append(errs, err)...)
}

func (h *Host) RequestNotifications(ctx context.Context) (bool, error) {
	res, err := h.send(ctx, "VKWebAppAllowNotifications", nil)
	if err != nil {
		return false, err
	}
	return res.Get("result").Bool(), nil
}

// Purchase is not available: VK payments are out of reach for this app.
func (h *Host) Purchase(context.Context, string, string) (platform.PurchaseResult, error) {
	return platform.PurchaseResult{}, platform.ErrNotSupported
}

func (h *Host) AppURL() string { return h.cfg.AppURL }

func (h *Host) Close(ctx context.Context) error {
	_, err := h.send(ctx, "VKWebAppClose", map[string]interface{}{"status": "success"})
	return err
}
