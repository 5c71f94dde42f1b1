package duelbot

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/Buckshot-KakaoTalk-bot/internal/adapter/duelpresenter"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/duel"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/irisfast"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/pvpduel"
	"github.com/park285/Buckshot-KakaoTalk-bot/pkg/dueldto"
)

// Options carries the chat-facing settings of the router.
type Options struct {
	Prefix       string
	HistoryLimit int
	// RoomAllowed and IsAdmin default to allowing every room and nobody.
	RoomAllowed func(room string) bool
	IsAdmin     func(userID string) bool
}

// Router turns chat messages into manager calls and replies through the presenter.
type Router struct {
	mgr    *pvpduel.Manager
	pres   *duelpresenter.Presenter
	opts   Options
	logger *zap.Logger
}

func NewRouter(mgr *pvpduel.Manager, pres *duelpresenter.Presenter, opts Options, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RoomAllowed == nil {
		opts.RoomAllowed = func(string) bool { return true }
	}
	if opts.IsAdmin == nil {
		opts.IsAdmin = func(string) bool { return false }
	}
	return &Router{mgr: mgr, pres: pres, opts: opts, logger: logger}
}

// Accepts reports whether msg is a command for this bot in an allowed room.
func (r *Router) Accepts(msg *irisfast.Message) bool {
	if msg == nil || strings.TrimSpace(msg.Msg) == "" || r.opts.Prefix == "" {
		return false
	}
	if !strings.HasPrefix(strings.TrimSpace(msg.Msg), r.opts.Prefix) {
		return false
	}
	if !r.opts.RoomAllowed(msg.Room) {
		r.logger.Debug("room_not_allowed", zap.String("room", msg.Room))
		return false
	}
	return true
}

// Handle dispatches one command. Failures are answered in the room and logged.
func (r *Router) Handle(ctx context.Context, msg *irisfast.Message) {
	if !r.Accepts(msg) {
		return
	}
	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(msg.Msg), r.opts.Prefix))
	parts := strings.Fields(raw)
	if len(parts) == 0 {
		r.reply(msg.Room, r.pres.Formatter().Help())
		return
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	user := msg.UserID()
	if user == "" {
		r.fail(msg.Room, cmd, pvpduel.ErrInvalidArgs)
		return
	}
	base := pvpduel.ActionRequest{Room: msg.Room, PlayerID: user}

	var err error
	switch cmd {
	case "벅샷", "결투", "duel":
		err = r.invite(ctx, msg, args)
	case "수락", "accept":
		err = r.result(msg.Room, wrap(r.mgr.Accept(ctx, base)))
	case "거절", "decline":
		err = r.result(msg.Room, wrap(r.mgr.Decline(ctx, base)))
	case "쏘기", "shoot":
		err = r.shoot(ctx, base, args)
	case "아이템", "item":
		err = r.item(ctx, base, args)
	case "아이템설명", "items":
		r.reply(msg.Room, r.pres.Formatter().ItemGuide())
	case "현황", "status":
		err = r.status(ctx, msg.Room)
	case "기권", "forfeit":
		err = r.result(msg.Room, wrap(r.mgr.Forfeit(ctx, base)))
	case "지갑", "wallet":
		err = r.wallet(ctx, msg)
	case "전적", "history":
		err = r.history(ctx, msg)
	case "초기화", "reset":
		if !r.opts.IsAdmin(user) {
			r.reply(msg.Room, r.pres.Formatter().Error(dueldto.DomainError{Code: "not_admin"}))
			return
		}
		err = r.result(msg.Room, wrap(r.mgr.Reset(ctx, msg.Room)))
	case "도움말", "help":
		r.reply(msg.Room, r.pres.Formatter().Help())
	default:
		r.reply(msg.Room, r.pres.Formatter().UnknownCommand())
	}
	if err != nil {
		r.fail(msg.Room, cmd, err)
	}
}

type outcome struct {
	res *pvpduel.Result
	err error
}

func wrap(res *pvpduel.Result, err error) outcome { return outcome{res: res, err: err} }

// result narrates a successful action and hands back the error otherwise.
func (r *Router) result(room string, o outcome) error {
	if o.res != nil {
		r.send(room, r.pres.Result(room, o.res))
	}
	return o.err
}

func (r *Router) invite(ctx context.Context, msg *irisfast.Message, args []string) error {
	if len(args) == 0 {
		return pvpduel.ErrInvalidArgs
	}
	targetName := sanitizeUserArg(args[0])
	targetID := targetName
	if mentions := msg.Mentions(); len(mentions) > 0 {
		targetID = mentions[0]
	}
	if targetID == "" {
		return pvpduel.ErrInvalidArgs
	}
	double := false
	for _, a := range args[1:] {
		switch strings.ToLower(a) {
		case "더블", "double", "dn":
			double = true
		}
	}
	name := msg.SenderName()
	if name == "" {
		name = msg.UserID()
	}
	res, err := r.mgr.Invite(ctx, pvpduel.InviteRequest{
		Room:            msg.Room,
		ChallengerID:    msg.UserID(),
		ChallengerName:  name,
		TargetID:        targetID,
		TargetName:      targetName,
		DoubleOrNothing: double,
	})
	if err != nil {
		return err
	}
	r.send(msg.Room, r.pres.Invite(msg.Room, res))
	return nil
}

func (r *Router) shoot(ctx context.Context, base pvpduel.ActionRequest, args []string) error {
	word := ""
	if len(args) > 0 {
		word = args[0]
	}
	target, ok := pvpduel.ParseTarget(word)
	if !ok {
		return pvpduel.ErrInvalidArgs
	}
	return r.result(base.Room, wrap(r.mgr.Shoot(ctx, pvpduel.ShootRequest{ActionRequest: base, Target: target})))
}

func (r *Router) item(ctx context.Context, base pvpduel.ActionRequest, args []string) error {
	if len(args) == 0 {
		r.reply(base.Room, r.pres.Formatter().ItemGuide())
		return nil
	}
	it, ok := duel.ParseItem(args[0])
	if !ok {
		return duel.ErrUnknownItem
	}
	req := pvpduel.ItemRequest{ActionRequest: base, Item: it}
	if len(args) > 1 {
		steal, ok := duel.ParseItem(args[1])
		if !ok {
			return duel.ErrUnknownItem
		}
		req.Steal = steal
	}
	return r.result(base.Room, wrap(r.mgr.UseItem(ctx, req)))
}

func (r *Router) status(ctx context.Context, room string) error {
	d, err := r.mgr.Snapshot(ctx, room)
	if err != nil {
		return err
	}
	r.send(room, r.pres.Status(room, d))
	return nil
}

func (r *Router) wallet(ctx context.Context, msg *irisfast.Message) error {
	w, err := r.mgr.Wallet(ctx, msg.UserID())
	if err != nil {
		return err
	}
	f := r.pres.Formatter()
	r.reply(msg.Room, f.Wallet(duelpresenter.ToWallet(w, msg.SenderName())))
	return nil
}

func (r *Router) history(ctx context.Context, msg *irisfast.Message) error {
	user := msg.UserID()
	recs, err := r.mgr.History(ctx, user, r.opts.HistoryLimit)
	if err != nil {
		return err
	}
	name := msg.SenderName()
	if name == "" {
		name = user
	}
	r.reply(msg.Room, r.pres.Formatter().History(name, duelpresenter.ToRecords(user, recs)))
	return nil
}

func (r *Router) fail(room, cmd string, err error) {
	de := duelpresenter.ToDomainError(err)
	if de.Code == "unknown" || de.Retryable {
		r.logger.Warn("command_error", zap.String("room", room), zap.String("cmd", cmd), zap.Error(err))
	} else {
		r.logger.Debug("command_rejected", zap.String("room", room), zap.String("cmd", cmd), zap.String("code", de.Code))
	}
	r.send(room, r.pres.Error(room, err))
}

func (r *Router) reply(room, text string) {
	r.send(room, r.pres.Send(room, text))
}

func (r *Router) send(room string, err error) {
	if err != nil {
		r.logger.Warn("reply_error", zap.String("room", room), zap.Error(err))
	}
}

func sanitizeUserArg(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "@")
}
