// Package platform normalizes the host runtimes the app can be embedded
// in behind one capability surface. Host drivers live in subpackages;
// the Adapter in this package is the only place their failures are
// absorbed.
package platform

import (
	"context"
	"errors"
)

type Profile string

const (
	VK       Profile = "vk"
	Telegram Profile = "telegram"
	Browser  Profile = "browser"
	Dev      Profile = "dev"
)

func ParseProfile(s string) (Profile, bool) {
	switch Profile(s) {
	case VK, Telegram, Browser, Dev:
		return Profile(s), true
	}
	return "", false
}

var (
	// ErrNotSupported marks a capability the host does not have. It is a
	// documented gap, not a failure.
	ErrNotSupported = errors.New("not supported by host")
	// ErrUnavailable marks a capability that exists but cannot be used
	// right now (no SDK object, no clipboard, offline).
	ErrUnavailable = errors.New("host capability unavailable")
)

type HapticKind string

const (
	HapticImpact       HapticKind = "impact"
	HapticNotification HapticKind = "notification"
	HapticSelection    HapticKind = "selection"
)

// Haptic describes one feedback pulse. Value is the impact style
// (light, medium, heavy) or the notification type (success, warning,
// error); it is empty for selection.
type Haptic struct {
	Kind  HapticKind
	Value string
}

// Claims are the identity facts a host reports at launch.
type Claims struct {
	UserID string
	Role   string
}

// ShareContext identifies what is being shared.
type ShareContext struct {
	CardID int
	Mode   string
	Title  string
}

// StoryPayload is a rendered share asset. Either field may be empty.
type StoryPayload struct {
	ImageURL string
	VideoURL string
}

const (
	ReasonNotSupported  = "not_supported"
	ReasonInvoiceFailed = "invoice_failed"
	ReasonNoInvoiceAPI  = "no_invoice_api"
	ReasonCancelled     = "cancelled"
	ReasonError         = "error"
)

type PurchaseResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// Host is implemented once per runtime. Methods may block, fail or
// panic; the Adapter deals with all three.
type Host interface {
	Profile() Profile
	Init(ctx context.Context) error
	Claims(ctx context.Context) (Claims, error)
	StorageGet(ctx context.Context, keys []string) (map[string]string, error)
	StorageSet(ctx context.Context, key, value string) error
	Haptic(ctx context.Context, h Haptic) error
	ShareLink(ctx context.Context, message string, sc ShareContext) (bool, error)
	ShareStory(ctx context.Context, p StoryPayload, sc ShareContext) (bool, error)
	RequestNotifications(ctx context.Context) (bool, error)
	Purchase(ctx context.Context, productID, userID string) (PurchaseResult, error)
	AppURL() string
	Close(ctx context.Context) error
}

// KV is the minimal store a driver can fall back to.
type KV interface {
	Get(ctx context.Context, keys []string) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
}

// Logger abstracts logging so callers can use logrus or anything else
// with the same shape.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// NopLogger discards everything.
func NopLogger() Logger { return nopLogger{} }
