package session

import (
	"fmt"
	"time"

	"workchat/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketSession       = []byte("session")
	bucketConversations = []byte("conversations")
	bucketMessages      = []byte("messages")

	keyToken = []byte("token")
	keyUser  = []byte("user")
)

// Store is the persisted client state: the opaque bearer token, the
// current user identity, and cached conversation/message snapshots for
// rendering before the first fetch completes.
type Store struct {
	db *bbolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open state db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSession); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketConversations); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketMessages); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveToken(token string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSession).Put(keyToken, []byte(token))
	})
}

// Token returns the stored bearer credential, empty when absent. It
// satisfies the gateway's TokenSource.
func (s *Store) Token() string {
	var token string
	_ = s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketSession).Get(keyToken); v != nil {
			token = string(v)
		}
		return nil
	})
	return token
}

func (s *Store) SaveUser(user models.User) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		dbUser := &DBUser{
			ID:       user.ID,
			Username: user.Username,
			Email:    user.Email,
			Role:     string(user.Role),
		}
		data, err := dbUser.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSession).Put(dbUser.Key(), data)
	})
}

func (s *Store) User() (models.User, error) {
	var user models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketSession).Get(keyUser)
		if v == nil {
			return models.ErrNotFound
		}
		var dbUser DBUser
		if err := dbUser.UnmarshalBinary(v); err != nil {
			return err
		}
		user = models.User{
			ID:       dbUser.ID,
			Username: dbUser.Username,
			Email:    dbUser.Email,
			Role:     models.Role(dbUser.Role),
		}
		return nil
	})
	return user, err
}

// Clear drops the stored credential and identity (logout). Cached
// snapshots are kept; they are display data, not secrets tied to a
// session.
func (s *Store) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSession)
		if err := b.Delete(keyToken); err != nil {
			return err
		}
		return b.Delete(keyUser)
	})
}

func (s *Store) SaveConversations(conversations []models.Conversation) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketConversations); err != nil {
			return err
		}
		b, err := tx.CreateBucket(bucketConversations)
		if err != nil {
			return err
		}
		for _, conv := range conversations {
			dbConv := DBConversation{
				ID:          conv.ID,
				Name:        conv.Name,
				Role:        string(conv.Role),
				LastMessage: conv.LastMessage,
				Timestamp:   conv.Timestamp,
				Unread:      conv.Unread,
				Online:      conv.Online,
			}
			data, err := dbConv.MarshalBinary()
			if err != nil {
				return err
			}
			if err := b.Put(dbConv.Key(), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) CachedConversations() ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConversations).ForEach(func(k, v []byte) error {
			var dbConv DBConversation
			if err := dbConv.UnmarshalBinary(v); err != nil {
				return err
			}
			conversations = append(conversations, models.Conversation{
				ID:          dbConv.ID,
				Name:        dbConv.Name,
				Role:        models.Role(dbConv.Role),
				LastMessage: dbConv.LastMessage,
				Timestamp:   dbConv.Timestamp,
				Unread:      dbConv.Unread,
				Online:      dbConv.Online,
			})
			return nil
		})
	})
	return conversations, err
}

// SaveMessages replaces the cached history for a conversation with a
// fresh snapshot.
func (s *Store) SaveMessages(conversationID string, messages []models.Message) error {
	if conversationID == "" {
		return fmt.Errorf("missing conversation id")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketMessages)
		if root.Bucket([]byte(conversationID)) != nil {
			if err := root.DeleteBucket([]byte(conversationID)); err != nil {
				return err
			}
		}
		b, err := root.CreateBucket([]byte(conversationID))
		if err != nil {
			return err
		}
		for _, msg := range messages {
			dbMsg := DBMessage{
				ID:             msg.ID,
				ConversationID: msg.ConversationID,
				SenderID:       msg.SenderID,
				SenderName:     msg.SenderName,
				Content:        msg.Content,
				Timestamp:      msg.Timestamp,
				IsOwn:          msg.IsOwn,
			}
			data, err := dbMsg.MarshalBinary()
			if err != nil {
				return fmt.Errorf("failed to marshal message: %w", err)
			}
			if err := b.Put(dbMsg.Key(), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// CachedMessages returns the cached history in timestamp order.
func (s *Store) CachedMessages(conversationID string) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMessages).Bucket([]byte(conversationID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, models.Message{
				ID:             dbMsg.ID,
				ConversationID: dbMsg.ConversationID,
				SenderID:       dbMsg.SenderID,
				SenderName:     dbMsg.SenderName,
				Content:        dbMsg.Content,
				Timestamp:      dbMsg.Timestamp,
				IsOwn:          dbMsg.IsOwn,
				Delivery:       models.DeliveryConfirmed,
			})
			return nil
		})
	})
	return messages, err
}
