package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/avekas/parley/internal/core"
	"github.com/avekas/parley/internal/domain"
)

// Badger implements Store on a local BadgerDB.
//
// Key layout:
//
//	user:{id}                        user record (profile + password hash)
//	uname:{username}                 unique username index -> user id
//	room:{id}                        room record
//	member:{room}:{user}             membership + moderation flags
//	msg:{room}:{ts %019d}:{uuid}     message, chronologically sortable
//	notif:{user}:{ts %019d}:{uuid}   notification, chronologically sortable
//
// The 19-digit zero-padded UnixNano keeps prefix scans in time order;
// the trailing uuid disambiguates same-nanosecond writes.
type Badger struct {
	db           *badger.DB
	historyLimit int
}

func Open(dir string, historyLimit int) (*Badger, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dir, err)
	}
	return &Badger{db: db, historyLimit: historyLimit}, nil
}

func (s *Badger) Close() error { return s.db.Close() }

type userRecord struct {
	User         domain.User `json:"user"`
	PasswordHash string      `json:"password_hash"`
}

func userKey(id domain.UserID) []byte { return []byte("user:" + id) }
func unameKey(username string) []byte { return []byte("uname:" + username) }
func roomKey(id domain.RoomID) []byte { return []byte("room:" + id) }
func memberKey(r domain.RoomID, u domain.UserID) []byte {
	return []byte(fmt.Sprintf("member:%s:%s", r, u))
}
func messageKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", m.Room, m.At.UnixNano(), m.ID))
}
func notifKey(n domain.Notification) []byte {
	return []byte(fmt.Sprintf("notif:%s:%019d:%s", n.User, n.At.UnixNano(), n.ID))
}

func (s *Badger) setJSON(txn *badger.Txn, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, raw)
}

func (s *Badger) getJSON(txn *badger.Txn, key []byte, v any) (bool, error) {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(raw []byte) error {
		return json.Unmarshal(raw, v)
	})
}

// --- UserStore ---

func (s *Badger) CreateUser(_ context.Context, u *domain.User, passwordHash string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(unameKey(u.Username)); err == nil {
			return ErrUsernameTaken
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		if err := txn.Set(unameKey(u.Username), []byte(u.ID)); err != nil {
			return err
		}
		return s.setJSON(txn, userKey(u.ID), userRecord{User: *u, PasswordHash: passwordHash})
	})
}

func (s *Badger) UserByID(_ context.Context, id domain.UserID) (*domain.User, error) {
	var rec userRecord
	err := s.db.View(func(txn *badger.Txn) error {
		ok, err := s.getJSON(txn, userKey(id), &rec)
		if err != nil {
			return err
		}
		if !ok {
			return core.ErrUserNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec.User, nil
}

func (s *Badger) UserByName(_ context.Context, username string) (*domain.User, string, error) {
	var rec userRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(unameKey(username))
		if err == badger.ErrKeyNotFound {
			return core.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		var id []byte
		if id, err = item.ValueCopy(nil); err != nil {
			return err
		}
		ok, err := s.getJSON(txn, userKey(domain.UserID(id)), &rec)
		if err != nil {
			return err
		}
		if !ok {
			return core.ErrUserNotFound
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return &rec.User, rec.PasswordHash, nil
}

// --- RoomStore ---

func (s *Badger) CreateRoom(_ context.Context, r *domain.Room) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return s.setJSON(txn, roomKey(r.ID), r)
	})
}

func (s *Badger) Room(_ context.Context, id domain.RoomID) (*domain.Room, error) {
	var r domain.Room
	err := s.db.View(func(txn *badger.Txn) error {
		ok, err := s.getJSON(txn, roomKey(id), &r)
		if err != nil {
			return err
		}
		if !ok {
			return core.ErrRoomNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Badger) Rooms(_ context.Context) ([]domain.Room, error) {
	var out []domain.Room
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("room:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r domain.Room
			err := it.Item().Value(func(raw []byte) error {
				return json.Unmarshal(raw, &r)
			})
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

// DeleteRoom removes the room record together with its memberships and
// message history.
func (s *Badger) DeleteRoom(_ context.Context, id domain.RoomID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(roomKey(id)); err == badger.ErrKeyNotFound {
			return core.ErrRoomNotFound
		} else if err != nil {
			return err
		}
		var keys [][]byte
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		for _, prefix := range [][]byte{
			[]byte(fmt.Sprintf("member:%s:", id)),
			[]byte(fmt.Sprintf("msg:%s:", id)),
		} {
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
		}
		it.Close()
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return txn.Delete(roomKey(id))
	})
}

func (s *Badger) SetOwner(_ context.Context, id domain.RoomID, owner domain.UserID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var r domain.Room
		ok, err := s.getJSON(txn, roomKey(id), &r)
		if err != nil {
			return err
		}
		if !ok {
			return core.ErrRoomNotFound
		}
		r.Owner = owner
		return s.setJSON(txn, roomKey(id), &r)
	})
}

// --- MembershipStore ---

func (s *Badger) AddMember(_ context.Context, room domain.RoomID, user domain.UserID, isAdmin bool) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(memberKey(room, user)); err == nil {
			return core.ErrAlreadyMember
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		return s.setJSON(txn, memberKey(room, user), domain.Membership{
			Room:     room,
			User:     user,
			IsAdmin:  isAdmin,
			JoinedAt: time.Now().UTC(),
		})
	})
}

func (s *Badger) RemoveMember(_ context.Context, room domain.RoomID, user domain.UserID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(memberKey(room, user))
	})
}

func (s *Badger) Membership(_ context.Context, room domain.RoomID, user domain.UserID) (domain.Membership, bool, error) {
	var m domain.Membership
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		ok, err := s.getJSON(txn, memberKey(room, user), &m)
		found = ok
		return err
	})
	return m, found, err
}

func (s *Badger) Members(_ context.Context, room domain.RoomID) ([]domain.Membership, error) {
	var out []domain.Membership
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(fmt.Sprintf("member:%s:", room))
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var m domain.Membership
			err := it.Item().Value(func(raw []byte) error {
				return json.Unmarshal(raw, &m)
			})
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	return out, err
}

func (s *Badger) IsMember(ctx context.Context, room domain.RoomID, user domain.UserID) (bool, error) {
	_, ok, err := s.Membership(ctx, room, user)
	return ok, err
}

func (s *Badger) IsBanned(ctx context.Context, room domain.RoomID, user domain.UserID) (bool, error) {
	m, ok, err := s.Membership(ctx, room, user)
	return ok && m.IsBanned, err
}

func (s *Badger) IsAdmin(ctx context.Context, room domain.RoomID, user domain.UserID) (bool, error) {
	m, ok, err := s.Membership(ctx, room, user)
	return ok && m.IsAdmin, err
}

func (s *Badger) MuteState(ctx context.Context, room domain.RoomID, user domain.UserID) (time.Time, bool, error) {
	m, ok, err := s.Membership(ctx, room, user)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return m.MuteUntil, m.Muted, nil
}

func (s *Badger) updateMember(room domain.RoomID, user domain.UserID, mutate func(*domain.Membership)) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var m domain.Membership
		ok, err := s.getJSON(txn, memberKey(room, user), &m)
		if err != nil {
			return err
		}
		if !ok {
			return core.ErrNotAMember
		}
		mutate(&m)
		return s.setJSON(txn, memberKey(room, user), m)
	})
}

func (s *Badger) Mute(_ context.Context, room domain.RoomID, user domain.UserID, until time.Time) error {
	return s.updateMember(room, user, func(m *domain.Membership) {
		m.Muted = true
		m.MuteUntil = until
	})
}

func (s *Badger) Unmute(_ context.Context, room domain.RoomID, user domain.UserID) error {
	return s.updateMember(room, user, func(m *domain.Membership) {
		m.Muted = false
		m.MuteUntil = time.Time{}
	})
}

func (s *Badger) Ban(_ context.Context, room domain.RoomID, user domain.UserID) error {
	return s.updateMember(room, user, func(m *domain.Membership) {
		m.IsBanned = true
	})
}

func (s *Badger) Unban(_ context.Context, room domain.RoomID, user domain.UserID) error {
	return s.updateMember(room, user, func(m *domain.Membership) {
		m.IsBanned = false
	})
}

func (s *Badger) SetAdmin(_ context.Context, room domain.RoomID, user domain.UserID, isAdmin bool) error {
	return s.updateMember(room, user, func(m *domain.Membership) {
		m.IsAdmin = isAdmin
	})
}

// --- MessageStore ---

func (s *Badger) AppendMessage(_ context.Context, room domain.RoomID, author domain.UserID, mt domain.MessageType, content string) (domain.Message, error) {
	msg, err := domain.NewMessage(room, author, mt, content)
	if err != nil {
		return domain.Message{}, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return s.setJSON(txn, messageKey(msg), msg)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// Messages pages newest-first. The cursor is the key remainder after
// the room prefix; passing the cursor from a previous call resumes the
// scan just past the last returned message.
func (s *Badger) Messages(_ context.Context, room domain.RoomID, cursor *string) ([]domain.Message, *string, error) {
	var out []domain.Message
	var lastKey string
	err := s.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", room)
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		if cursor == nil {
			// Position past the newest possible key for the room.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		} else {
			seekKey = append(prefix, []byte(*cursor)...)
		}
		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if s.historyLimit > 0 && len(out) == s.historyLimit {
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			var m domain.Message
			err := item.Value(func(raw []byte) error {
				return json.Unmarshal(raw, &m)
			})
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if lastKey == "" {
		return out, nil, nil
	}
	return out, &lastKey, nil
}

// --- NotificationStore ---

func (s *Badger) AddNotification(_ context.Context, n domain.Notification) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return s.setJSON(txn, notifKey(n), n)
	})
}

func (s *Badger) Notifications(_ context.Context, user domain.UserID, unreadOnly bool) ([]domain.Notification, error) {
	var out []domain.Notification
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("notif:%s:", user))
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()
		seekKey := append(prefix, []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			var n domain.Notification
			err := it.Item().Value(func(raw []byte) error {
				return json.Unmarshal(raw, &n)
			})
			if err != nil {
				return err
			}
			out = append(out, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if unreadOnly {
		out = lo.Filter(out, func(n domain.Notification, _ int) bool { return !n.Read })
	}
	return out, nil
}

func (s *Badger) MarkAllRead(_ context.Context, user domain.UserID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		type pending struct {
			key []byte
			n   domain.Notification
		}
		var updates []pending
		prefix := []byte(fmt.Sprintf("notif:%s:", user))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var n domain.Notification
			err := item.Value(func(raw []byte) error {
				return json.Unmarshal(raw, &n)
			})
			if err != nil {
				it.Close()
				return err
			}
			if n.Read {
				continue
			}
			n.Read = true
			updates = append(updates, pending{key: item.KeyCopy(nil), n: n})
		}
		it.Close()
		for _, u := range updates {
			if err := s.setJSON(txn, u.key, u.n); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Badger) MarkRead(_ context.Context, user domain.UserID, id uuid.UUID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("notif:%s:", user))
		suffix := ":" + id.String()
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		var key []byte
		var n domain.Notification
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if !strings.HasSuffix(string(item.Key()), suffix) {
				continue
			}
			key = item.KeyCopy(nil)
			err := item.Value(func(raw []byte) error {
				return json.Unmarshal(raw, &n)
			})
			if err != nil {
				it.Close()
				return err
			}
			break
		}
		it.Close()
		if key == nil {
			return ErrNotificationNotFound
		}
		n.Read = true
		return s.setJSON(txn, key, n)
	})
}
