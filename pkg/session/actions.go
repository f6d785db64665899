package session

import (
	"context"
	"fmt"

	"github.com/krevetka/krevetka/pkg/analytics"
	"github.com/krevetka/krevetka/pkg/content"
	"github.com/krevetka/krevetka/pkg/platform"
	"github.com/krevetka/krevetka/pkg/progress"
)

// SelectMode picks the tone and moves to TAP, or to LIMIT when the
// budget is spent.
func (s *Session) SelectMode(m content.Mode) (err error) {
	defer s.protect("select_mode", &err)
	if _, ok := content.ParseMode(string(m)); !ok {
		return fmt.Errorf("unknown mode %q", m)
	}
	limited := s.IsLimitReached()

	s.mu.Lock()
	if err := s.usable(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.mode != m {
		s.engine.Reset()
	}
	s.gen++
	s.mode = m
	s.card = nil
	s.phase = PhaseIdle
	if limited {
		s.screen = ScreenLimit
	} else {
		s.screen = ScreenTap
	}
	s.mu.Unlock()

	if limited {
		s.limitReached("select_mode")
		return ErrLimitReached
	}
	s.adapter.HapticSelection()
	s.emit()
	return nil
}

// SelectDeck narrows the card pool to a themed deck. An empty id selects
// every card.
func (s *Session) SelectDeck(id string) (err error) {
	defer s.protect("select_deck", &err)
	if _, err := s.catalog.CardsForDeck(id); err != nil {
		return err
	}
	s.mu.Lock()
	if err := s.usable(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.deck != id {
		s.engine.Reset()
	}
	s.deck = id
	s.mu.Unlock()
	s.adapter.HapticSelection()
	s.emit()
	return nil
}

// Again leaves the card for another tap, guarded like SelectMode.
func (s *Session) Again() (err error) {
	defer s.protect("again", &err)
	limited := s.IsLimitReached()

	s.mu.Lock()
	if err := s.usable(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.screen != ScreenCard {
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.gen++
	s.card = nil
	s.phase = PhaseIdle
	s.isNew = false
	if limited {
		s.screen = ScreenLimit
	} else {
		s.screen = ScreenTap
	}
	s.mu.Unlock()

	if limited {
		s.limitReached("again")
		return ErrLimitReached
	}
	s.adapter.HapticSelection()
	s.emit()
	return nil
}

// ChangeMode returns to CHOICE and forgets the reward, the mode and the
// anti-repeat history. Reveals already under way still apply their
// rewards.
func (s *Session) ChangeMode() (err error) {
	defer s.protect("change_mode", &err)
	s.mu.Lock()
	if err := s.usable(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.resetToChoice()
	s.mu.Unlock()
	s.emit()
	return nil
}

// OpenCollection overlays the collection on any screen.
func (s *Session) OpenCollection() (err error) {
	defer s.protect("open_collection", &err)
	s.mu.Lock()
	if err := s.usable(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.gen++
	s.screen = ScreenCollection
	s.mu.Unlock()
	s.adapter.HapticSelection()
	s.emit()
	return nil
}

// CloseCollection goes back to CHOICE.
func (s *Session) CloseCollection() (err error) {
	defer s.protect("close_collection", &err)
	s.mu.Lock()
	if err := s.usable(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.screen != ScreenCollection {
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.resetToChoice()
	s.mu.Unlock()
	s.emit()
	return nil
}

// Purchase buys productID through the host. On success the grant is
// applied and a LIMIT screen returns to TAP. Failures leave the screen
// unchanged.
func (s *Session) Purchase(ctx context.Context, productID string) (res platform.PurchaseResult, err error) {
	defer s.protect("purchase", &err)
	product, err := s.catalog.Product(productID)
	if err != nil {
		return platform.PurchaseResult{}, err
	}
	s.mu.Lock()
	if err := s.usable(); err != nil {
		s.mu.Unlock()
		return platform.PurchaseResult{}, err
	}
	s.mu.Unlock()

	res = s.adapter.Purchase(ctx, product.ID)
	if !res.Success {
		s.log.Infof("session: purchase %s failed: %s", product.ID, res.Reason)
		s.sink.Track(analytics.EventPurchaseFailed, map[string]interface{}{
			"product_id": product.ID,
			"reason":     res.Reason,
		})
		return res, nil
	}

	switch {
	case product.Unlimited:
		s.quota.GrantUnlimited()
	case product.BonusTaps > 0:
		s.quota.AddBonus(product.BonusTaps)
	default:
		s.quota.AddBonus(s.cfg.BonusTaps)
	}
	s.sink.Track(analytics.EventPurchase, map[string]interface{}{
		"product_id": product.ID,
		"amount":     product.Price,
	})
	s.adapter.HapticNotification("success")

	s.mu.Lock()
	if s.screen == ScreenLimit {
		s.gen++
		if s.mode != "" {
			s.screen = ScreenTap
		} else {
			s.screen = ScreenChoice
		}
	}
	s.mu.Unlock()
	s.emit()
	return res, nil
}

func (s *Session) shareContext() (platform.ShareContext, *content.Card, content.Mode, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.card == nil || s.phase < PhaseCard {
		return platform.ShareContext{}, nil, s.mode, ""
	}
	card := *s.card
	return platform.ShareContext{
		CardID: card.ID,
		Mode:   string(s.mode),
		Title:  card.Face(s.mode).Diagnosis,
	}, &card, s.mode, s.video
}

// ShareFriend shares the current diagnosis, or just the app when no card
// is on screen.
func (s *Session) ShareFriend(ctx context.Context) (ok bool, err error) {
	defer s.protect("share_friend", &err)
	sc, card, _, _ := s.shareContext()
	msg := "The shrimp of fate knows the truth about you 🦐"
	if card != nil {
		msg = fmt.Sprintf("My diagnosis: %s 🦐", sc.Title)
	}
	s.adapter.HapticSelection()
	if !s.adapter.ShareLink(ctx, msg, sc) {
		return false, nil
	}
	s.level.AddXP(progress.XPShareFriend)
	s.sink.Track(analytics.EventShareFriend, map[string]interface{}{"card_id": sc.CardID})
	s.emit()
	return true, nil
}

// ShareStory posts the current card as a story. Hosts without stories
// fall back to a link share.
func (s *Session) ShareStory(ctx context.Context) (ok bool, err error) {
	defer s.protect("share_story", &err)
	sc, card, mode, video := s.shareContext()
	if card == nil {
		return false, ErrNoCard
	}
	s.adapter.HapticSelection()
	if s.adapter.ShareStory(ctx, s.renderer.Story(*card, mode, video), sc) {
		s.level.AddXP(progress.XPShareStory)
		s.sink.Track(analytics.EventShareStory, map[string]interface{}{"card_id": card.ID})
		s.emit()
		return true, nil
	}
	s.log.Debugf("session: story share unavailable, falling back to link")
	return s.ShareFriend(ctx)
}

// RequestNotifications asks the host for push permission once.
func (s *Session) RequestNotifications(ctx context.Context) (allowed bool, err error) {
	defer s.protect("notifications", &err)
	allowed = s.notifications.Request(ctx, s.adapter)
	s.sink.Track(analytics.EventNotifications, map[string]interface{}{"allowed": allowed})
	s.mu.Lock()
	s.askNotify = false
	s.mu.Unlock()
	s.emit()
	return allowed, nil
}

// DismissNotifications hides the prompt for the rest of the session.
func (s *Session) DismissNotifications() {
	s.mu.Lock()
	s.askNotify = false
	s.notifyDismissed = true
	s.mu.Unlock()
	s.emit()
}

func (s *Session) DismissWinBack() {
	s.notifications.DismissWinBack()
	s.emit()
}

// DismissToasts hides any achievement or level-up toast.
func (s *Session) DismissToasts() {
	s.achievements.Dismiss()
	s.level.DismissLevelUp()
}

// AdminReset zeroes today's tap count. Admins only.
func (s *Session) AdminReset() (err error) {
	defer s.protect("admin_reset", &err)
	if !s.adapter.IsAdmin() {
		return ErrNotAdmin
	}
	s.quota.AdminReset()
	s.mu.Lock()
	if s.screen == ScreenLimit && s.mode != "" {
		s.gen++
		s.screen = ScreenTap
	}
	s.mu.Unlock()
	s.log.Infof("session: admin reset today's taps")
	s.emit()
	return nil
}

// OpenDeepLink shows the card named by a "card=<id>&mode=<mode>" URL
// fragment. Unknown or malformed links are ignored.
func (s *Session) OpenDeepLink(fragment string) (opened bool) {
	defer s.protect("deep_link", nil)
	id, mode, ok := platform.ParseFragment(fragment)
	if !ok {
		return false
	}
	m, ok := content.ParseMode(mode)
	if !ok {
		return false
	}
	card, err := s.catalog.Card(id)
	if err != nil {
		s.log.Debugf("session: deep link to unknown card %d", id)
		return false
	}
	s.mu.Lock()
	if s.usable() != nil {
		s.mu.Unlock()
		return false
	}
	s.gen++
	s.mode = m
	s.card = &card
	s.video = ""
	s.phase = PhaseDiagnosis
	s.isNew = false
	s.screen = ScreenCard
	s.mu.Unlock()
	s.emit()
	return true
}
