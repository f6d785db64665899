// Package telegram drives the Telegram Mini App runtime.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/krevetka/krevetka/pkg/platform"
	"github.com/krevetka/krevetka/pkg/whttp"
	"github.com/tidwall/gjson"
)

const (
	DefaultBotUsername = "krevetka_dest_bot"
	fallbackPrefix     = "krevetka_"
)

var DefaultAdminIDs = []string{"2635817"}

// WebApp is the subset of Telegram.WebApp the app uses.
type WebApp interface {
	Ready() error
	Expand() error
	EnableClosingConfirmation() error
	// InitData is the raw launch payload (a query string whose "user"
	// field holds JSON).
	InitData() string
	HapticFeedback(kind platform.HapticKind, value string) error
	OpenTelegramLink(link string) error
	// OpenInvoice shows the payment sheet and returns its final status
	// ("paid", "cancelled", "failed", "pending").
	OpenInvoice(ctx context.Context, invoiceURL string) (string, error)
	Close() error
}

// CloudStorage is Telegram.WebApp.CloudStorage.
type CloudStorage interface {
	GetItems(ctx context.Context, keys []string) (map[string]string, error)
	SetItem(ctx context.Context, key, value string) error
}

type Config struct {
	BotUsername string
	// InvoiceEndpoint receives {product_id, user_id} and answers
	// {ok, url, error}.
	InvoiceEndpoint string
	HTTPClient      *retryablehttp.Client
	// Fallback is used whenever CloudStorage is missing or fails.
	Fallback platform.KV
}

type Host struct {
	wa    WebApp
	cloud CloudStorage
	cfg   Config
}

// New builds a host. wa and cloud may be nil when the SDK is absent.
func New(wa WebApp, cloud CloudStorage, cfg Config) *Host {
	if cfg.BotUsername == "" {
		cfg.BotUsername = DefaultBotUsername
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = whttp.NewClient(1)
	}
	return &Host{wa: wa, cloud: cloud, cfg: cfg}
}

func (h *Host) Profile() platform.Profile { return platform.Telegram }

func (h *Host) Init(context.Context) error {
	if h.wa == nil {
		return fmt.Errorf("no Telegram WebApp: %w", platform.ErrUnavailable)
	}
	if err := h.wa.Ready(); err != nil {
		return err
	}
	if err := h.wa.Expand(); err != nil {
		return err
	}
	return h.wa.EnableClosingConfirmation()
}

func (h *Host) Claims(context.Context) (platform.Claims, error) {
	if h.wa == nil {
		return platform.Claims{}, platform.ErrUnavailable
	}
	return platform.Claims{UserID: UserIDFromInitData(h.wa.InitData())}, nil
}

// UserIDFromInitData extracts user.id from a raw initData string.
func UserIDFromInitData(raw string) string {
	q, err := url.ParseQuery(raw)
	if err != nil {
		return ""
	}
	user := q.Get("user")
	if user == "" || !gjson.Valid(user) {
		return ""
	}
	id := gjson.Get(user, "id")
	if id.Type != gjson.Number && id.Type != gjson.String {
		return ""
	}
	return id.String()
}

func (h *Host) StorageGet(ctx context.Context, keys []string) (map[string]string, error) {
	if h.cloud != nil {
		vals, err := h.cloud.GetItems(ctx, keys)
		if err == nil {
			return vals, nil
		}
		if h.cfg.Fallback == nil {
			return nil, err
		}
	}
	return h.fallbackGet(ctx, keys)
}

func (h *Host) StorageSet(ctx context.Context, key, value string) error {
	if h.cloud != nil {
		err := h.cloud.SetItem(ctx, key, value)
		if err == nil {
			return nil
		}
		if h.cfg.Fallback == nil {
			return err
		}
	}
	if h.cfg.Fallback == nil {
		return platform.ErrUnavailable
	}
	return h.cfg.Fallback.Set(ctx, fallbackPrefix+key, value)
}

func (h *Host) fallbackGet(ctx context.Context, keys []string) (map[string]string, error) {
	if h.cfg.Fallback == nil {
		return nil, platform.ErrUnavailable
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = fallbackPrefix + k
	}
	vals, err := h.cfg.Fallback.Get(ctx, prefixed)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = vals[fallbackPrefix+k]
	}
	return out, nil
}

func (h *Host) Haptic(_ context.Context, hp platform.Haptic) error {
	if h.wa == nil {
		return platform.ErrUnavailable
	}
	return h.wa.HapticFeedback(hp.Kind, hp.Value)
}

// ShareLink opens the Telegram share sheet for the bot link.
func (h *Host) ShareLink(_ context.Context, message string, _ platform.ShareContext) (bool, error) {
	if h.wa == nil {
		return false, platform.ErrUnavailable
	}
	link := "https://t.me/share/url?url=" + url.QueryEscape(h.AppURL()) + "&text=" + url.QueryEscape(message)
	if err := h.wa.OpenTelegramLink(link); err != nil {
		return false, err
	}
	return true, nil
}

// ShareStory is not available to mini apps; callers fall back to links.
func (h *Host) ShareStory(context.Context, platform.StoryPayload, platform.ShareContext) (bool, error) {
	return false, platform.ErrNotSupported
}

// RequestNotifications always succeeds: the bot can message anyone who
// started it.
func (h *Host) RequestNotifications(context.Context) (bool, error) {
	return true, nil
}

// Purchase creates an invoice through the backend, then opens it.
func (h *Host) Purchase(ctx context.Context, productID, userID string) (platform.PurchaseResult, error) {
	if h.cfg.InvoiceEndpoint == "" {
		return platform.PurchaseResult{Reason: platform.ReasonInvoiceFailed}, errors.New("no invoice endpoint configured")
	}
	if userID == "" {
		userID = "anon"
	}
	res, err := whttp.PostJSON(ctx, h.cfg.HTTPClient, h.cfg.InvoiceEndpoint, map[string]string{
		"product_id": productID,
		"user_id":    userID,
	})
	if err != nil {
		return platform.PurchaseResult{Reason: platform.ReasonError}, err
	}
	doc := gjson.ParseBytes(res.Body)
	invoiceURL := doc.Get("url").String()
	if !doc.Get("ok").Bool() || invoiceURL == "" {
		reason := doc.Get("error").String()
		if reason == "" {
			reason = platform.ReasonInvoiceFailed
		}
		return platform.PurchaseResult{Reason: reason}, nil
	}

	if h.wa == nil {
		return platform.PurchaseResult{Reason: platform.ReasonNoInvoiceAPI}, nil
	}
	status, err := h.wa.OpenInvoice(ctx, invoiceURL)
	if err != nil {
		return platform.PurchaseResult{Reason: platform.ReasonError}, err
	}
	if status == "paid" {
		return platform.PurchaseResult{Success: true}, nil
	}
	return platform.PurchaseResult{Reason: status}, nil
}

func (h *Host) AppURL() string {
	return "https://t.me/" + h.cfg.BotUsername
}

func (h *Host) Close(context.Context) error {
	if h.wa == nil {
		return nil
	}
	return h.wa.Close()
}
