package chat

import (
	"encoding/json"
	"time"

	"RoomChat/module/chat/model"
	"RoomChat/tools/errs"
)

// commands
const (
	CmdFetchMessages    = "fetch_messages"
	CmdNewMessage       = "new_message"
	CmdMessages         = "messages"
	CmdChatsListMessage = "chats_list_message"
	CmdReloadPage       = "reload_page"
)

// InboundFrame is a client command.
type InboundFrame struct {
	Command string `json:"command"`
	RoomID  string `json:"room_id,omitempty"`
	From    string `json:"from,omitempty"`
	Message string `json:"message"`
}

func ParseFrameJSON(raw []byte) (*InboundFrame, error) {
	f := &InboundFrame{}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, errs.ErrArgs.WrapMsg("unmarshal frame failed", "err", err)
	}
	return f, nil
}

// MessageView is a message as clients see it. The id is a string because
// snowflake ids do not fit a JavaScript number.
type MessageView struct {
	ID        int64  `json:"id,string"`
	Author    string `json:"author"`
	AuthorID  string `json:"author_id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func NewMessageView(m *model.Message, author string) MessageView {
	return MessageView{
		ID:        m.ID,
		Author:    author,
		AuthorID:  m.AuthorID,
		Content:   m.Content,
		Timestamp: m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

type MessagesFrame struct {
	Command  string        `json:"command"`
	Messages []MessageView `json:"messages"`
}

type NewMessageFrame struct {
	Command string      `json:"command"`
	Message MessageView `json:"message"`
}

type ChatsListFrame struct {
	Command string      `json:"command"`
	RoomID  string      `json:"room_id"`
	Message MessageView `json:"message"`
}

type ReloadFrame struct {
	Command string `json:"command"`
}

func BuildMessages(views []MessageView) ([]byte, error) {
	if views == nil {
		views = []MessageView{}
	}
	return json.Marshal(MessagesFrame{Command: CmdMessages, Messages: views})
}

func BuildNewMessage(v MessageView) ([]byte, error) {
	return json.Marshal(NewMessageFrame{Command: CmdNewMessage, Message: v})
}

func BuildChatsList(roomID string, v MessageView) ([]byte, error) {
	return json.Marshal(ChatsListFrame{Command: CmdChatsListMessage, RoomID: roomID, Message: v})
}

var reloadPayload, _ = json.Marshal(ReloadFrame{Command: CmdReloadPage})

func BuildReload() []byte { return reloadPayload }
