package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/krevetka/krevetka/internal/utils"
	"github.com/krevetka/krevetka/pkg/content"
	"github.com/krevetka/krevetka/pkg/platform"
	"github.com/krevetka/krevetka/pkg/session"
	"github.com/krevetka/krevetka/pkg/storage"
)

const playHelp = `commands:
  angry | soft      pick a mode
  deck <id>         narrow the cards to a deck (decks lists them)
  tap               ask the shrimp
  again             another card
  back              return to the mode choice
  collection        open your collection (close to leave)
  buy <product>     buy taps (products lists them)
  share | story     share the current diagnosis
  notify            allow reminders
  dismiss           hide notices
  reset             admin: reset today's taps
  reload            leave the error screen
  status | help | quit`

// playCmd represents the play command
var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Start an interactive session with the shrimp of fate",
	Long: `Start an interactive session. The platform is detected from --launch-url and
--referrer unless --platform forces one. A "#card=<id>&mode=<mode>" fragment in the
launch URL opens that card directly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		launchURL, _ := cmd.Flags().GetString("launch-url")
		referrer, _ := cmd.Flags().GetString("referrer")

		cfg, err := sessionConfig()
		if err != nil {
			return err
		}
		profile, err := resolveProfile(launchURL, referrer)
		if err != nil {
			return err
		}
		cat, err := loadCatalog()
		if err != nil {
			return err
		}

		var db *storage.DB
		if profile == platform.Browser || profile == platform.Telegram {
			var closeStore func()
			db, closeStore, err = openStore()
			if err != nil {
				return err
			}
			defer closeStore()
		}

		out := cmd.OutOrStdout()
		adapter := newAdapter(newHost(profile, db, launchURL, out), cfg.HandshakeTimeout)
		s, err := session.New(cfg, session.Deps{
			Adapter: adapter,
			Catalog: cat,
			Tracker: newTracker(profile),
			Log:     utils.Log,
		})
		if err != nil {
			return err
		}
		utils.Log.Debugf("playing on %s", profile)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		wait := cfg.RevealDelay + cfg.DiagnosisDelay + 5*time.Second
		return runPlay(ctx, s, fragment(launchURL), cmd.InOrStdin(), out, wait)
	},
}

func init() {
	rootCmd.AddCommand(playCmd)
	playCmd.Flags().String("launch-url", "", "Launch URL, as the host would open the app")
	playCmd.Flags().String("referrer", "", "Referrer of the launch")
}

func fragment(launchURL string) string {
	u, err := url.Parse(launchURL)
	if err != nil {
		return ""
	}
	return u.Fragment
}

// runPlay drives s from line commands on in until quit, EOF or ctx ends.
// wait bounds how long a tap waits for its diagnosis.
func runPlay(ctx context.Context, s *session.Session, link string, in io.Reader, out io.Writer, wait time.Duration) error {
	revealed := make(chan struct{}, 1)
	s.OnChange(func(v session.View) {
		if v.Phase == session.PhaseDiagnosis && v.Card != nil {
			select {
			case revealed <- struct{}{}:
			default:
			}
		}
	})

	if err := s.Start(ctx); err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Close(closeCtx); err != nil {
			utils.Log.Warnf("closing session: %v", err)
		}
	}()

	fmt.Fprint(out, LOGO)
	if link != "" && !s.OpenDeepLink(link) {
		fmt.Fprintln(out, "That card link leads nowhere.")
	}
	v := s.View()
	renderStatus(out, v)
	renderView(out, v, s.Catalog())

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			line = l
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			return nil
		}
		if err := playCommand(ctx, s, fields, out, revealed, wait); err != nil {
			fmt.Fprintf(out, "! %s\n", describe(err))
		}
		renderView(out, s.View(), s.Catalog())
	}
}

func playCommand(ctx context.Context, s *session.Session, fields []string, out io.Writer, revealed chan struct{}, wait time.Duration) error {
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}
	switch fields[0] {
	case "angry", "soft":
		return s.SelectMode(content.Mode(fields[0]))
	case "deck":
		return s.SelectDeck(arg)
	case "decks":
		for _, d := range s.Catalog().Decks() {
			fmt.Fprintf(out, "  %-10s %s\n", d.ID, d.Name)
		}
	case "tap":
		select {
		case <-revealed:
		default:
		}
		if err := s.Tap(); err != nil {
			return err
		}
		renderView(out, s.View(), s.Catalog())
		select {
		case <-revealed:
		case <-ctx.Done():
		case <-time.After(wait):
			return errors.New("the shrimp fell asleep")
		}
	case "again":
		return s.Again()
	case "back":
		return s.ChangeMode()
	case "collection":
		if err := s.OpenCollection(); err != nil {
			return err
		}
		renderCollection(out, s.Collection(), s.Catalog())
	case "close":
		return s.CloseCollection()
	case "buy":
		res, err := s.Purchase(ctx, arg)
		if err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("purchase failed: %s", res.Reason)
		}
		fmt.Fprintln(out, "Thanks! The shrimp is refreshed.")
	case "products":
		for _, p := range s.Catalog().Products() {
			fmt.Fprintf(out, "  %-14s %s (%d)\n", p.ID, p.Title, p.Price)
		}
	case "share":
		ok, err := s.ShareFriend(ctx)
		if err == nil && !ok {
			return errors.New("sharing is not available here")
		}
		return err
	case "story":
		ok, err := s.ShareStory(ctx)
		if err == nil && !ok {
			return errors.New("sharing is not available here")
		}
		return err
	case "notify":
		allowed, err := s.RequestNotifications(ctx)
		if err != nil {
			return err
		}
		if allowed {
			fmt.Fprintln(out, "The shrimp will remind you.")
		} else {
			fmt.Fprintln(out, "Reminders are off.")
		}
	case "dismiss":
		s.DismissNotifications()
		s.DismissWinBack()
		s.DismissToasts()
	case "reset":
		return s.AdminReset()
	case "reload":
		s.Reload()
	case "status":
		renderStatus(out, s.View())
	case "help":
		fmt.Fprintln(out, playHelp)
	default:
		return fmt.Errorf("unknown command %q, try help", fields[0])
	}
	return nil
}

func describe(err error) string {
	switch {
	case errors.Is(err, session.ErrLimitReached):
		return "no taps left today"
	case errors.Is(err, session.ErrTapInFlight):
		return "the shrimp is still thinking"
	case errors.Is(err, session.ErrInvalidState):
		return "not here"
	case errors.Is(err, session.ErrNotAdmin):
		return "admins only"
	case errors.Is(err, session.ErrNoCard):
		return "draw a card first"
	case errors.Is(err, content.ErrUnknownProduct):
		return "no such product, try products"
	case errors.Is(err, content.ErrUnknownDeck):
		return "no such deck, try decks"
	}
	return err.Error()
}
