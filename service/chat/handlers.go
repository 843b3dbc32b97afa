package chat

import (
	"context"

	"RoomChat/logger"
	"RoomChat/module/chat/model"
	"RoomChat/tools/errs"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// staleRoom rejects a frame naming a different room than the socket's.
func staleRoom(sess *Session, f *InboundFrame) error {
	if f.RoomID != "" && f.RoomID != sess.roomID {
		return errs.ErrStaleReference.WrapMsg("room mismatch", "room", f.RoomID, "session_room", sess.roomID)
	}
	return nil
}

func (s *Server) handleFetchMessages(ctx context.Context, sess *Session, f *InboundFrame) error {
	if err := staleRoom(sess, f); err != nil {
		return err
	}
	ctx, cancel := s.ioCtx(ctx)
	defer cancel()

	msgs, err := s.repo.LastN(ctx, sess.roomID, s.opts.FetchLimit, 0)
	if err != nil {
		return err
	}
	ids := lo.Map(msgs, func(m *model.Message, _ int) int64 { return m.ID })
	if err := s.repo.MarkRead(ctx, sess.user.ID, ids...); err != nil {
		return err
	}
	authors := lo.Uniq(lo.Map(msgs, func(m *model.Message, _ int) string { return m.AuthorID }))
	names, err := s.repo.Usernames(ctx, authors)
	if err != nil {
		return err
	}
	payload, err := BuildMessages(lo.Map(msgs, func(m *model.Message, _ int) MessageView {
		return NewMessageView(m, names[m.AuthorID])
	}))
	if err != nil {
		return errs.Wrap(err)
	}
	sess.reply(payload)
	return nil
}

func (s *Server) handleNewMessage(ctx context.Context, sess *Session, f *InboundFrame) error {
	if err := staleRoom(sess, f); err != nil {
		return err
	}
	from := f.From
	if from == "" {
		from = sess.user.ID
	}
	if from != sess.user.ID {
		return errs.ErrNoPermission.WrapMsg("author mismatch", "from", from, "user", sess.user.ID)
	}

	lctx, cancel := s.ioCtx(ctx)
	defer cancel()
	author, err := s.repo.GetUser(lctx, from)
	if err != nil {
		if errs.Code(err) == errs.RecordNotFoundError {
			return errs.ErrStaleReference.WrapMsg("author vanished", "user", from)
		}
		return err
	}
	members, err := s.repo.MembersOf(lctx, sess.roomID)
	if err != nil {
		if errs.Code(err) == errs.RecordNotFoundError {
			return errs.ErrStaleReference.WrapMsg("room vanished", "room", sess.roomID)
		}
		return err
	}
	if !lo.Contains(members, author.ID) {
		return errs.ErrStaleReference.WrapMsg("author left the room", "user", author.ID, "room", sess.roomID)
	}
	msg, err := s.repo.Append(lctx, author.ID, sess.roomID, f.Message)
	if err != nil {
		return err
	}

	// The message is stored; the fanout runs even if the socket goes away.
	fctx, fcancel := s.ioCtx(context.WithoutCancel(ctx))
	defer fcancel()

	view := NewMessageView(msg, author.Username)
	payload, err := BuildNewMessage(view)
	if err != nil {
		return errs.Wrap(err)
	}
	if err := s.bus.PublishToGroup(fctx, sess.roomID, Event{
		Command:   CmdNewMessage,
		Payload:   payload,
		MessageID: msg.ID,
		AuthorID:  author.ID,
	}); err != nil {
		logger.Error("room broadcast failed", zap.String("room", sess.roomID), zap.Int64("message", msg.ID), zap.Error(err))
	}

	listPayload, err := BuildChatsList(sess.roomID, view)
	if err != nil {
		return errs.Wrap(err)
	}
	s.fanoutChatsList(fctx, sess.roomID, lo.Without(members, author.ID), Event{
		Command:   CmdChatsListMessage,
		Payload:   listPayload,
		MessageID: msg.ID,
		AuthorID:  author.ID,
	})
	return nil
}
