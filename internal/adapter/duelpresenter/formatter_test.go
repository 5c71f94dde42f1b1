package duelpresenter

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/park285/Buckshot-KakaoTalk-bot/internal/domain"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/duel"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/msgcat"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/pvpduel"
	"github.com/park285/Buckshot-KakaoTalk-bot/pkg/dueldto"
)

func newFixture(t *testing.T) (*duel.Engine, *Formatter, *duel.Duel) {
	t.Helper()
	e, err := duel.NewEngine(duel.DefaultRules(), duel.NewRNG(42))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	d, err := e.NewDuel("d1", "room", "u1", "철수", "u2", "영희", false)
	if err != nil {
		t.Fatalf("NewDuel: %v", err)
	}
	return e, NewFormatter(cat, StaticPrefix("!")), d
}

func TestAcceptOutcomeNarrative(t *testing.T) {
	e, f, d := newFixture(t)
	out, err := e.Accept(d, "u2")
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	text := f.Outcome(ToOutcome(e, d, out), ToSnapshot(e, d))
	for _, want := range []string{"영희님이 결투를 수락", "라운드 1 시작", "재장전", "라운드 1/3", "!쏘기"} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in:\n%s", want, text)
		}
	}
}

func TestFinalRoundHidesHP(t *testing.T) {
	e, f, d := newFixture(t)
	if _, err := e.Accept(d, "u2"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	d.Round = 3
	d.MaxHP = 6
	d.HP["u1"] = 2
	d.HP["u2"] = 5

	snap := ToSnapshot(e, d)
	if !snap.Players[0].HPHidden || snap.Players[1].HPHidden {
		t.Fatalf("hidden flags = %v/%v", snap.Players[0].HPHidden, snap.Players[1].HPHidden)
	}
	text := f.Status(snap)
	if !strings.Contains(text, "❓❓") {
		t.Fatalf("hidden hp not masked:\n%s", text)
	}
	if !strings.Contains(text, "❤❤❤❤❤🖤") {
		t.Fatalf("visible hp bar missing:\n%s", text)
	}

	line := f.Event(dueldto.Event{Kind: string(duel.EventShot), Actor: "영희", Target: "철수", Bullet: string(duel.Live), Amount: 1, HP: 1, HPHidden: true})
	if !strings.Contains(line, "남은 체력 ?") {
		t.Fatalf("shot line leaks hp: %q", line)
	}
}

func TestMatchEndLines(t *testing.T) {
	_, f, _ := newFixture(t)
	win := f.Event(dueldto.Event{Kind: string(duel.EventMatchEnd), Actor: "철수", Reason: string(duel.EndMajority), Prize: 139780})
	if !strings.Contains(win, "139,780원") {
		t.Fatalf("prize not formatted: %q", win)
	}
	draw := f.Event(dueldto.Event{Kind: string(duel.EventMatchEnd), Reason: string(duel.EndRoundCap)})
	if !strings.Contains(draw, "무승부") {
		t.Fatalf("draw line: %q", draw)
	}
	if got := f.Event(dueldto.Event{Kind: string(duel.EventItemsGranted), Actor: "철수"}); got != "" {
		t.Fatalf("empty grant should be silent: %q", got)
	}
}

func TestToDomainError(t *testing.T) {
	cases := []struct {
		err       error
		code      string
		retryable bool
	}{
		{fmt.Errorf("%w: put failed", duel.ErrStoreUnavailable), "store_unavailable", true},
		{fmt.Errorf("%w: v3", duel.ErrStaleAction), "stale_action", true},
		{duel.ErrNotYourTurn, "not_your_turn", false},
		{pvpduel.ErrAlreadyPending, "already_pending", false},
		{errors.New("boom"), "unknown", false},
	}
	_, f, _ := newFixture(t)
	for _, tc := range cases {
		de := ToDomainError(tc.err)
		if de.Code != tc.code || de.Retryable != tc.retryable {
			t.Fatalf("%v -> %+v, want %s/%v", tc.err, de, tc.code, tc.retryable)
		}
		if msg := f.Error(de); strings.TrimSpace(msg) == "" {
			t.Fatalf("no message for %s", de.Code)
		}
	}
}

func TestWalletAndHistory(t *testing.T) {
	_, f, _ := newFixture(t)
	w := ToWallet(&domain.Wallet{PlayerID: "u1", Total: 1234567, Usage: map[string]int{"drink": 2}}, "철수")
	text := f.Wallet(w)
	if !strings.Contains(text, "1,234,567원") || !strings.Contains(text, "맥주 2회") {
		t.Fatalf("wallet:\n%s", text)
	}

	recs := ToRecords("u1", []domain.DuelRecord{
		{DuelID: "a", PlayerA: "u1", NameA: "철수", PlayerB: "u2", NameB: "영희", Winner: "u1", ScoreA: 2, ScoreB: 1, Prize: 70000, EndedAt: time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)},
		{DuelID: "b", PlayerA: "u2", PlayerB: "u1", NameB: "철수", ScoreA: 1, ScoreB: 1},
	})
	if !recs[0].Won || !recs[1].Draw || recs[1].NameA != "u2" {
		t.Fatalf("records: %+v", recs)
	}
	hist := f.History("철수", recs)
	if !strings.Contains(hist, "+70,000원") || !strings.Contains(hist, "06-01 12:00") || !strings.Contains(hist, "무승부") {
		t.Fatalf("history:\n%s", hist)
	}
}

func TestPresenterSendsResult(t *testing.T) {
	e, f, d := newFixture(t)
	var sent []string
	p := NewPresenter(e, f, func(room, msg string) error {
		sent = append(sent, room+"|"+msg)
		return nil
	})
	if err := p.Invite("room", &pvpduel.Result{Duel: d, Outcome: &duel.Outcome{}}); err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if err := p.Error("room", duel.ErrDuelExists); err != nil {
		t.Fatalf("Error: %v", err)
	}
	if err := p.Send("room", "   "); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sent) != 2 || !strings.Contains(sent[0], "철수님 → 영희님") || !strings.Contains(sent[1], "이미 결투") {
		t.Fatalf("sent = %q", sent)
	}
}
