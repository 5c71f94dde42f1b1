package duelpresenter

import (
	"errors"

	"github.com/park285/Buckshot-KakaoTalk-bot/internal/domain"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/duel"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/pvpduel"
	"github.com/park285/Buckshot-KakaoTalk-bot/pkg/dueldto"
)

// ToSnapshot maps a duel for display. hp concealed by the final-round rule is marked hidden.
func ToSnapshot(e *duel.Engine, d *duel.Duel) *dueldto.Snapshot {
	if d == nil {
		return nil
	}
	live, blank := d.Remaining()
	s := &dueldto.Snapshot{
		DuelID:          d.ID,
		Room:            d.Room,
		Status:          string(d.Status),
		Round:           d.Round,
		MaxHP:           d.MaxHP,
		Turn:            d.CurrentTurn,
		TurnName:        d.Name(d.CurrentTurn),
		Live:            live,
		Blank:           blank,
		DoubleOrNothing: d.DoubleOrNothing,
		Version:         d.Version,
		Winner:          d.Winner,
		EndReason:       string(d.EndReason),
		UpdatedAt:       d.UpdatedAt,
	}
	if e != nil {
		s.MaxRounds = e.Rules().MaxRounds
	}
	for i, p := range d.Players() {
		eff := d.EffectsOf(p)
		s.Players[i] = dueldto.PlayerView{
			ID:       p,
			Name:     d.Name(p),
			HP:       d.HP[p],
			HPHidden: e != nil && e.HidesHP(d, p),
			Score:    d.Scores[p],
			Items:    itemKinds(d.Inventory[p]),
			Knife:    eff.Knife,
			Cuffed:   eff.Cuffed,
			Stacks:   eff.CuffStacks,
			Jammed:   eff.Jammed,
		}
	}
	return s
}

// ToOutcome resolves player ids to display names. hp reports of players whose hp is
// hidden after the action are flagged.
func ToOutcome(e *duel.Engine, d *duel.Duel, out *duel.Outcome) *dueldto.Outcome {
	if out == nil {
		return &dueldto.Outcome{}
	}
	o := &dueldto.Outcome{
		TurnContinues: out.TurnContinues,
		RoundOver:     out.RoundOver,
		MatchOver:     out.MatchOver,
		Prize:         out.Prize,
	}
	name := func(id string) string { return id }
	if d != nil {
		name = d.Name
		if out.Winner != "" {
			o.Winner = d.Name(out.Winner)
		}
	}
	for _, ev := range out.Events {
		de := dueldto.Event{
			Kind:   string(ev.Kind),
			Item:   string(ev.Item),
			Bullet: string(ev.Bullet),
			Amount: ev.Amount,
			HP:     ev.HP,
			Live:   ev.Live,
			Blank:  ev.Blank,
			Round:  ev.Round,
			Items:  itemKinds(ev.Items),
			Reason: ev.Reason,
			Prize:  ev.Prize,
		}
		if ev.Actor != "" {
			de.Actor = name(ev.Actor)
		}
		if ev.Target != "" {
			de.Target = name(ev.Target)
		}
		if e != nil && d != nil {
			subject := ev.Actor
			if ev.Kind == duel.EventShot {
				subject = ev.Target
			}
			switch ev.Kind {
			case duel.EventShot, duel.EventHeal, duel.EventHarm:
				de.HPHidden = e.HidesHP(d, subject)
			}
		}
		o.Events = append(o.Events, de)
	}
	return o
}

func ToWallet(w *domain.Wallet, name string) *dueldto.Wallet {
	if w == nil {
		return nil
	}
	usage := make(map[string]int, len(w.Usage))
	for k, v := range w.Usage {
		usage[k] = v
	}
	if name == "" {
		name = w.PlayerID
	}
	return &dueldto.Wallet{PlayerID: w.PlayerID, Name: name, Total: w.Total, Usage: usage}
}

// ToRecords maps history rows from playerID's point of view.
func ToRecords(playerID string, recs []domain.DuelRecord) []dueldto.Record {
	out := make([]dueldto.Record, 0, len(recs))
	for _, r := range recs {
		winner := r.Winner
		switch r.Winner {
		case r.PlayerA:
			winner = nameOr(r.NameA, r.PlayerA)
		case r.PlayerB:
			winner = nameOr(r.NameB, r.PlayerB)
		}
		out = append(out, dueldto.Record{
			DuelID:    r.DuelID,
			NameA:     nameOr(r.NameA, r.PlayerA),
			NameB:     nameOr(r.NameB, r.PlayerB),
			ScoreA:    r.ScoreA,
			ScoreB:    r.ScoreB,
			Winner:    winner,
			Won:       r.Winner != "" && r.Winner == playerID,
			Draw:      r.Winner == "",
			Prize:     r.Prize,
			EndReason: r.EndReason,
			EndedAt:   r.EndedAt,
		})
	}
	return out
}

var errorCodes = []struct {
	err       error
	code      string
	retryable bool
}{
	{duel.ErrNotYourTurn, "not_your_turn", false},
	{duel.ErrDuelNotActive, "not_active", false},
	{duel.ErrItemNotHeld, "item_not_held", false},
	{duel.ErrInvalidTarget, "invalid_target", false},
	{duel.ErrUnknownItem, "unknown_item", false},
	{duel.ErrRoundCapExceeded, "round_cap", false},
	{duel.ErrStoreUnavailable, "store_unavailable", true},
	{duel.ErrStaleAction, "stale_action", true},
	{duel.ErrNotParticipant, "not_participant", false},
	{duel.ErrDuelExists, "duel_exists", false},
	{duel.ErrDuelNotFound, "not_found", false},
	{pvpduel.ErrAlreadyPending, "already_pending", false},
	{pvpduel.ErrPlayerBusy, "player_busy", false},
	{pvpduel.ErrInvalidArgs, "invalid_args", false},
}

// ToDomainError classifies err. Unknown errors map to code "unknown".
func ToDomainError(err error) dueldto.DomainError {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return dueldto.DomainError{Code: ec.code, Message: err.Error(), Retryable: ec.retryable}
		}
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return dueldto.DomainError{Code: "unknown", Message: msg}
}

func itemKinds(items []duel.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, string(it))
	}
	return out
}

func nameOr(name, id string) string {
	if name != "" {
		return name
	}
	return id
}
