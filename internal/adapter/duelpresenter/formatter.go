package duelpresenter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/park285/Buckshot-KakaoTalk-bot/internal/duel"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/msgcat"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/util"
	"github.com/park285/Buckshot-KakaoTalk-bot/pkg/dueldto"
)

const (
	historyTimeLayout = "01-02 15:04"
	seeMoreSuffix     = " (전체보기)"
)

// PrefixProvider exposes the command prefix shown in hints.
type PrefixProvider interface {
	Prefix() string
}

type staticPrefix string

func (p staticPrefix) Prefix() string { return string(p) }

// StaticPrefix adapts a fixed prefix string.
func StaticPrefix(p string) PrefixProvider { return staticPrefix(p) }

// Formatter renders duel DTOs into Kakao text using the message catalog.
type Formatter struct {
	cat            *msgcat.Catalog
	prefixProvider PrefixProvider
}

func NewFormatter(cat *msgcat.Catalog, provider PrefixProvider) *Formatter {
	return &Formatter{cat: cat, prefixProvider: provider}
}

func (f *Formatter) Prefix() string {
	if f == nil || f.prefixProvider == nil {
		return ""
	}
	return strings.TrimSpace(f.prefixProvider.Prefix())
}

// eventView is the template data of one event line.
type eventView struct {
	Actor  string
	Target string
	Item   string
	Bullet string
	Amount int
	HP     string
	Live   int
	Blank  int
	Round  int
	Items  string
	Reason string
	Prize  int64
}

func (f *Formatter) ItemName(kind string) string {
	return f.cat.Text("item."+kind+".name", nil, kind)
}

func (f *Formatter) itemList(kinds []string) string {
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, f.ItemName(k))
	}
	return strings.Join(names, ", ")
}

func (f *Formatter) bullet(kind string) string {
	if kind == "" {
		return ""
	}
	return f.cat.Text("bullet."+kind, nil, kind)
}

// Event renders one outcome event, or "" for events with nothing to tell.
func (f *Formatter) Event(ev dueldto.Event) string {
	key := "event." + ev.Kind
	switch duel.EventKind(ev.Kind) {
	case duel.EventShot:
		if ev.Bullet == string(duel.Live) {
			key = "event.shot.live"
		} else {
			key = "event.shot.blank"
		}
	case duel.EventUnusable:
		key = "event.unusable." + ev.Reason
	case duel.EventMatchEnd:
		key = "event.match_end." + ev.Reason
		if ev.Actor == "" && (ev.Reason == string(duel.EndMajority) || ev.Reason == string(duel.EndRoundCap)) {
			key = "event.match_end.draw"
		}
	case duel.EventItemsGranted:
		if len(ev.Items) == 0 {
			return ""
		}
	}

	hp := fmt.Sprint(ev.HP)
	if ev.HPHidden {
		hp = "?"
	}
	view := eventView{
		Actor:  ev.Actor,
		Target: ev.Target,
		Item:   f.ItemName(ev.Item),
		Bullet: f.bullet(ev.Bullet),
		Amount: ev.Amount,
		HP:     hp,
		Live:   ev.Live,
		Blank:  ev.Blank,
		Round:  ev.Round,
		Items:  f.itemList(ev.Items),
		Reason: ev.Reason,
		Prize:  ev.Prize,
	}
	return f.cat.Text(key, view, "")
}

// Outcome renders the narrative of one action followed by the table state while the
// duel is still running.
func (f *Formatter) Outcome(out *dueldto.Outcome, snap *dueldto.Snapshot) string {
	var lines []string
	if out != nil {
		for _, ev := range out.Events {
			if line := f.Event(ev); line != "" {
				lines = append(lines, line)
			}
		}
	}
	if snap != nil && snap.Status == string(duel.StatusActive) && (out == nil || !out.MatchOver) {
		lines = append(lines, "", f.Status(snap))
	}
	return strings.Join(lines, "\n")
}

func (f *Formatter) Invite(snap *dueldto.Snapshot) string {
	if snap == nil {
		return ""
	}
	return f.cat.Text("invite.created", map[string]any{
		"Challenger": snap.Players[0].Name,
		"Target":     snap.Players[1].Name,
		"Double":     snap.DoubleOrNothing,
		"Prefix":     f.Prefix(),
	}, snap.Players[0].Name+" vs "+snap.Players[1].Name)
}

// Status renders the table. Hidden hp shows as question marks.
func (f *Formatter) Status(snap *dueldto.Snapshot) string {
	if snap == nil {
		return f.cat.Text("error.not_found", nil, "")
	}
	if snap.Status == string(duel.StatusPending) {
		return f.cat.Text("status.pending", map[string]any{
			"Challenger": snap.Players[0].Name,
			"Target":     snap.Players[1].Name,
		}, "")
	}

	var sb strings.Builder
	sb.WriteString(f.cat.Text("status.header", map[string]any{
		"Round":     snap.Round,
		"MaxRounds": snap.MaxRounds,
		"Turn":      snap.TurnName,
	}, ""))
	for _, p := range snap.Players {
		hp := util.HPBar(p.HP, snap.MaxHP)
		if p.HPHidden {
			hp = f.cat.Text("status.hidden_hp", nil, "??")
		}
		items := f.itemList(p.Items)
		if items == "" {
			items = f.cat.Text("status.no_items", nil, "-")
		}
		sb.WriteString("\n")
		sb.WriteString(f.cat.Text("status.player", map[string]any{
			"Name":  p.Name,
			"HP":    hp,
			"Score": p.Score,
			"Items": items,
		}, p.Name))
		if eff := f.effects(p); eff != "" {
			sb.WriteString("\n")
			sb.WriteString(f.cat.Text("status.effects", map[string]any{"Effects": eff}, eff))
		}
	}
	sb.WriteString("\n")
	sb.WriteString(f.cat.Text("status.chamber", map[string]any{"Live": snap.Live, "Blank": snap.Blank}, ""))
	sb.WriteString("\n")
	sb.WriteString(f.cat.Text("status.commands", map[string]any{"Prefix": f.Prefix()}, ""))
	return sb.String()
}

func (f *Formatter) effects(p dueldto.PlayerView) string {
	var parts []string
	if p.Knife {
		parts = append(parts, f.ItemName(string(duel.ItemBlade)))
	}
	if p.Cuffed {
		parts = append(parts, f.ItemName(string(duel.ItemRestraint)))
	}
	if p.Stacks > 0 {
		parts = append(parts, fmt.Sprintf("%s x%d", f.ItemName(string(duel.ItemRestraint)), p.Stacks))
	}
	return strings.Join(parts, " ")
}

func (f *Formatter) Wallet(w *dueldto.Wallet) string {
	if w == nil {
		return ""
	}
	keys := make([]string, 0, len(w.Usage))
	for k := range w.Usage {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	usage := make([]string, 0, len(keys))
	for _, k := range keys {
		usage = append(usage, fmt.Sprintf("%s %d회", f.ItemName(k), w.Usage[k]))
	}
	return f.cat.Text("wallet.body", map[string]any{
		"Name":  w.Name,
		"Total": w.Total,
		"Usage": strings.Join(usage, ", "),
	}, fmt.Sprintf("%s: %s", w.Name, util.FormatAmount(w.Total)))
}

func (f *Formatter) History(name string, recs []dueldto.Record) string {
	header := f.cat.Text("history.header", map[string]any{"Name": name}, name)
	if len(recs) == 0 {
		return header + "\n" + f.cat.Text("history.empty", nil, "")
	}
	lines := make([]string, 0, len(recs))
	for _, r := range recs {
		result := r.Winner + " 승"
		switch {
		case r.Draw:
			result = "무승부"
		case r.Won && r.Prize > 0:
			result = fmt.Sprintf("승리 +%s원", util.FormatAmount(r.Prize))
		}
		lines = append(lines, f.cat.Text("history.line", map[string]any{
			"When":   util.FormatKST(r.EndedAt, historyTimeLayout),
			"A":      r.NameA,
			"B":      r.NameB,
			"ScoreA": r.ScoreA,
			"ScoreB": r.ScoreB,
			"Result": result,
		}, r.DuelID))
	}
	return util.ApplyKakaoSeeMorePadding(strings.Join(lines, "\n"), header+seeMoreSuffix)
}

// ItemGuide lists every item with its description.
func (f *Formatter) ItemGuide() string {
	header := f.cat.Text("guide.header", nil, "")
	lines := make([]string, 0, len(duel.Pool(true)))
	for _, it := range duel.Pool(true) {
		lines = append(lines, fmt.Sprintf("• %s\n  %s", f.ItemName(string(it)), f.cat.Text("item."+string(it)+".desc", nil, "")))
	}
	return util.ApplyKakaoSeeMorePadding(strings.Join(lines, "\n"), header+seeMoreSuffix)
}

func (f *Formatter) Help() string {
	header := f.cat.Text("help.header", nil, "")
	body := f.cat.Text("help.body", map[string]any{"Prefix": f.Prefix()}, "")
	return util.ApplyKakaoSeeMorePadding(body, header+seeMoreSuffix)
}

func (f *Formatter) UnknownCommand() string {
	return f.cat.Text("error.unknown_command", map[string]any{"Prefix": f.Prefix()}, "")
}

func (f *Formatter) Error(e dueldto.DomainError) string {
	return f.cat.Text("error."+e.Code, nil, f.cat.Text("error.unknown", nil, e.Error()))
}
