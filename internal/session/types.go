package session

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBUser struct {
	ID       string `msgpack:"id"`
	Username string `msgpack:"username"`
	Email    string `msgpack:"email"`
	Role     string `msgpack:"role"`
}

func (u *DBUser) Key() []byte {
	return keyUser
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

type DBConversation struct {
	ID          string `msgpack:"id"`
	Name        string `msgpack:"name"`
	Role        string `msgpack:"role"`
	LastMessage string `msgpack:"lastMessage"`
	Timestamp   int64  `msgpack:"timestamp"`
	Unread      int    `msgpack:"unread"`
	Online      bool   `msgpack:"online"`
}

func (c *DBConversation) Key() []byte {
	return []byte(c.ID)
}

func (c *DBConversation) MarshalBinary() (data []byte, err error) {
	type alias DBConversation
	return msgpack.Marshal((*alias)(c))
}

func (c *DBConversation) UnmarshalBinary(data []byte) error {
	type alias DBConversation
	return msgpack.Unmarshal(data, (*alias)(c))
}

type DBMessage struct {
	ID             string `msgpack:"id"`
	ConversationID string `msgpack:"conversationId"`
	SenderID       string `msgpack:"senderId"`
	SenderName     string `msgpack:"senderName"`
	Content        string `msgpack:"content"`
	Timestamp      int64  `msgpack:"timestamp"`
	IsOwn          bool   `msgpack:"isOwn"`
}

// Key orders cached messages by timestamp, disambiguated by the server
// identity so equal timestamps cannot collide.
func (m *DBMessage) Key() []byte {
	key := make([]byte, 8, 8+len(m.ID))
	binary.BigEndian.PutUint64(key, uint64(m.Timestamp))
	return append(key, m.ID...)
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}
