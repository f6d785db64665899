package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/krevetka/krevetka/pkg/analytics"
	"github.com/krevetka/krevetka/pkg/content"
	"github.com/krevetka/krevetka/pkg/progress"
	"github.com/krevetka/krevetka/pkg/session"
)

func renderView(w io.Writer, v session.View, cat *content.Catalog) {
	switch v.Screen {
	case session.ScreenChoice:
		fmt.Fprintln(w, "Choose your mode: angry | soft")
	case session.ScreenTap:
		if v.Animating {
			fmt.Fprintln(w, "🦐 the shrimp is thinking...")
			break
		}
		fmt.Fprintf(w, "Mode %s, deck %s. Type tap (%s left today).\n", v.Mode, deckLabel(v.Deck), remaining(v))
	case session.ScreenCard:
		renderCard(w, v)
	case session.ScreenLimit:
		fmt.Fprintln(w, "The shrimp is tired. Come back tomorrow, or buy more taps:")
		for _, p := range cat.Products() {
			fmt.Fprintf(w, "  buy %-14s %s (%d)\n", p.ID, p.Title, p.Price)
		}
	case session.ScreenCollection:
		fmt.Fprintln(w, "Collection open. Type close to go back.")
	case session.ScreenFault:
		fmt.Fprintf(w, "Something broke: %s. Type reload.\n", v.Fault)
	}

	if v.LevelUp != nil {
		fmt.Fprintf(w, "%s Level up! You are now %s (level %d)\n", v.LevelUp.Emoji, v.LevelUp.Title, v.LevelUp.Level)
	}
	if v.Toast != nil {
		fmt.Fprintf(w, "%s Achievement unlocked: %s\n", v.Toast.Emoji, v.Toast.Title)
	}
	if v.WinBack {
		fmt.Fprintf(w, "Welcome back! You were away for %d hours. (dismiss)\n", v.HoursAway)
	}
	if v.AskNotifications {
		fmt.Fprintln(w, "Want the shrimp to remind you? Type notify, or dismiss.")
	}
}

func renderCard(w io.Writer, v session.View) {
	if v.Card == nil {
		return
	}
	tag := ""
	if v.IsNew {
		tag = " NEW"
	}
	fmt.Fprintf(w, "Card #%d (%s)%s\n", v.Card.ID, v.Card.Rarity, tag)
	fmt.Fprintf(w, "  %s\n", v.Face.Hit)
	if v.Face.Support != "" {
		fmt.Fprintf(w, "  %s\n", v.Face.Support)
	}
	if v.Face.Diagnosis != "" {
		fmt.Fprintf(w, "  Diagnosis: %s\n", v.Face.Diagnosis)
	}
	if v.Video != "" {
		fmt.Fprintf(w, "  video: %s\n", v.Video)
	}
	if v.LimitReached {
		fmt.Fprintln(w, "That was your last tap for today.")
	}
}

func renderStatus(w io.Writer, v session.View) {
	lp := v.Level
	next := "max"
	if lp.Next != nil {
		next = fmt.Sprintf("%d to %s", lp.XPToNext, lp.Next.Title)
	}
	fmt.Fprintf(w, "[%s] %s %s lvl %d, %d xp (%s) | streak %d (%s) | taps %s\n",
		v.Profile, lp.Current.Emoji, lp.Current.Title, lp.Current.Level, lp.XP, next,
		v.Streak, v.StreakTier, remaining(v))
}

func remaining(v session.View) string {
	if v.Admin || v.Quota.Unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d/%d", v.Quota.Remaining, v.Quota.Limit)
}

func deckLabel(id string) string {
	if id == "" {
		return "all"
	}
	return id
}

func renderCollection(w io.Writer, st progress.CollectionStats, cat *content.Catalog) {
	fmt.Fprintf(w, "Collected %d of %d diagnoses (%d%%), %d angry, %d soft, %d rare finds\n",
		st.Unique, st.MaxPossible, st.Percent, st.Angry, st.Soft, st.RareFinds)
	if len(st.Recent) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CARD\tMODE\tDATE\tDIAGNOSIS\t")
	for _, e := range st.Recent {
		rarity := ""
		if c, err := cat.Card(e.ID); err == nil && c.Rarity != content.Common {
			rarity = " *"
		}
		fmt.Fprintf(tw, "#%d%s\t%s\t%s\t%s\t\n", e.ID, rarity, e.Mode, shortDate(e.Date), e.Diagnosis)
	}
	tw.Flush()
}

func shortDate(iso string) string {
	if i := strings.IndexByte(iso, 'T'); i > 0 {
		return iso[:i]
	}
	return iso
}

func renderSummary(w io.Writer, s analytics.Summary) {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "EVENT\tCOUNT\t")
	for _, name := range sortedKeys(s.Events) {
		fmt.Fprintf(tw, "%s\t%d\t\n", name, s.Events[name])
	}
	fmt.Fprintln(tw, " \t \t")
	fmt.Fprintf(tw, "SESSIONS\t%d\t\n", s.Sessions)
	tw.Flush()
	fmt.Fprintf(w, "first visit %s, last visit %s, platform %s\n", orDash(s.FirstVisit), orDash(s.LastVisit), orDash(s.Platform))
	fmt.Fprintf(w, "rarities %s | modes %s | decks %s\n", counters(s.Rarities), counters(s.Modes), counters(s.Decks))
}

func counters(m map[string]int64) string {
	if len(m) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
