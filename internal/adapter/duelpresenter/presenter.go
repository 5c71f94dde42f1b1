package duelpresenter

import (
	"strings"

	"github.com/park285/Buckshot-KakaoTalk-bot/internal/duel"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/pvpduel"
	"github.com/park285/Buckshot-KakaoTalk-bot/pkg/dueldto"
)

// Presenter turns manager results into chat messages and delivers them to a room.
type Presenter struct {
	engine      *duel.Engine
	format      *Formatter
	sendMessage func(room, message string) error
}

func NewPresenter(engine *duel.Engine, format *Formatter, sendMessage func(room, message string) error) *Presenter {
	return &Presenter{engine: engine, format: format, sendMessage: sendMessage}
}

func (p *Presenter) Formatter() *Formatter { return p.format }

// Send delivers text unless it is blank.
func (p *Presenter) Send(room, text string) error {
	if p == nil || p.sendMessage == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	return p.sendMessage(room, text)
}

func (p *Presenter) Invite(room string, res *pvpduel.Result) error {
	if res == nil {
		return nil
	}
	return p.Send(room, p.format.Invite(ToSnapshot(p.engine, res.Duel)))
}

// Result narrates one action and, while the duel runs, the table after it.
func (p *Presenter) Result(room string, res *pvpduel.Result) error {
	if res == nil {
		return nil
	}
	snap := ToSnapshot(p.engine, res.Duel)
	out := ToOutcome(p.engine, res.Duel, res.Outcome)
	return p.Send(room, p.format.Outcome(out, snap))
}

func (p *Presenter) Status(room string, d *duel.Duel) error {
	return p.Send(room, p.format.Status(ToSnapshot(p.engine, d)))
}

func (p *Presenter) Error(room string, err error) error {
	if err == nil {
		return nil
	}
	return p.Send(room, p.format.Error(ToDomainError(err)))
}

func (p *Presenter) Expired(d *duel.Duel, out *duel.Outcome) error {
	if d == nil {
		return nil
	}
	return p.Send(d.Room, p.format.Outcome(ToOutcome(p.engine, d, out), nil))
}

// DomainError exposes the classification for callers that branch on retryability.
func (p *Presenter) DomainError(err error) dueldto.DomainError { return ToDomainError(err) }
