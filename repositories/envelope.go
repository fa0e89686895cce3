//go:generate go run go.uber.org/mock/mockgen -source=envelope.go -destination=../mocks/mock_envelope_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"collab-hub/domain/envelope"

	"github.com/dgraph-io/badger/v4"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	keyPrefix = "env"
	numberLen = 20
)

type IEnvelopeRepository interface {
	Store(env envelope.Envelope) error
	List(eventID string, after Cursor, limit int) ([]StoredEnvelope, error)
	Latest(eventID string) (Cursor, error)
}

// Cursor is a position in the history of an event: the room incarnation
// and the sequence within it. Positions order by Epoch, then Sequence.
type Cursor struct {
	Epoch    uint64
	Sequence uint64
}

// StoredEnvelope is a relayed room envelope as kept on disk.
type StoredEnvelope struct {
	EventID   string
	Epoch     uint64
	Sequence  uint64
	Type      envelope.Type
	SenderID  string
	Timestamp time.Time
	Payload   json.RawMessage
}

func (s StoredEnvelope) Cursor() Cursor {
	return Cursor{Epoch: s.Epoch, Sequence: s.Sequence}
}

type EnvelopeRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewEnvelopeRepository(db *badger.DB, log *slog.Logger) EnvelopeRepository {
	return EnvelopeRepository{db: db, log: log}
}

// Key formats "env:{eventId}:{epoch}:{sequence}" with both numbers zero
// padded to 20 digits so a prefix scan returns every incarnation of a room
// in broadcast order.
func Key(eventID string, epoch, sequence uint64) []byte {
	return []byte(fmt.Sprintf("%s:%s:%0*d:%0*d", keyPrefix, eventID, numberLen, epoch, numberLen, sequence))
}

func roomPrefix(eventID string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", keyPrefix, eventID))
}

// Store persists a sequenced room envelope. Re-storing the same position
// overwrites the previous record.
func (r EnvelopeRepository) Store(env envelope.Envelope) error {
	eventID := env.EventID()
	if eventID == "" || env.Sequence == 0 || env.Epoch == 0 {
		return fmt.Errorf("envelope %s is not a sequenced room envelope", env.Type)
	}
	record, err := toRecord(env)
	if err != nil {
		return err
	}
	bytes, err := proto.Marshal(record)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(Key(eventID, env.Epoch, env.Sequence), bytes)
	})
}

// List returns up to limit envelopes of a room positioned after the cursor,
// oldest first. The zero Cursor lists from the start and a limit <= 0 means
// no limit.
func (r EnvelopeRepository) List(eventID string, after Cursor, limit int) ([]StoredEnvelope, error) {
	var stored []StoredEnvelope
	prefix := roomPrefix(eventID)
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(Key(eventID, after.Epoch, after.Sequence+1)); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(stored) == limit {
				r.log.Debug(fmt.Sprintf("Maximum of %d envelopes reached", limit))
				break
			}
			item := it.Item()
			if _, ok := cursorOf(item.Key(), prefix); !ok {
				continue
			}
			err := item.Value(func(value []byte) error {
				s, err := fromBytes(value)
				if err != nil {
					return err
				}
				stored = append(stored, s)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return stored, err
}

// Latest returns the position of the newest stored envelope of a room, the
// zero Cursor when none.
func (r EnvelopeRepository) Latest(eventID string) (Cursor, error) {
	var latest Cursor
	prefix := roomPrefix(eventID)
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(append(prefix, 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			if cursor, ok := cursorOf(it.Item().Key(), prefix); ok {
				latest = cursor
				return nil
			}
		}
		return nil
	})
	return latest, err
}

// cursorOf rejects keys of a longer event id sharing the same prefix.
func cursorOf(key, prefix []byte) (Cursor, bool) {
	rest := key[len(prefix):]
	if len(rest) != 2*numberLen+1 || rest[numberLen] != ':' {
		return Cursor{}, false
	}
	epoch, err := strconv.ParseUint(string(rest[:numberLen]), 10, 64)
	if err != nil {
		return Cursor{}, false
	}
	seq, err := strconv.ParseUint(string(rest[numberLen+1:]), 10, 64)
	if err != nil {
		return Cursor{}, false
	}
	return Cursor{Epoch: epoch, Sequence: seq}, true
}

func toRecord(env envelope.Envelope) (*structpb.Struct, error) {
	raw, err := json.Marshal(env.Payload)
	if err != nil {
		return nil, err
	}
	payload := &structpb.Struct{}
	if err = protojson.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("payload of %s is not an object: %w", env.Type, err)
	}
	senderID := ""
	if env.Sender != nil {
		senderID = env.Sender.UserID
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"eventId":   structpb.NewStringValue(env.EventID()),
		"epoch":     structpb.NewStringValue(strconv.FormatUint(env.Epoch, 10)),
		"sequence":  structpb.NewStringValue(strconv.FormatUint(env.Sequence, 10)),
		"type":      structpb.NewStringValue(string(env.Type)),
		"senderId":  structpb.NewStringValue(senderID),
		"timestamp": structpb.NewStringValue(strconv.FormatInt(env.Timestamp, 10)),
		"payload":   structpb.NewStructValue(payload),
	}}, nil
}

func fromBytes(b []byte) (StoredEnvelope, error) {
	var record structpb.Struct
	if err := proto.Unmarshal(b, &record); err != nil {
		return StoredEnvelope{}, err
	}
	return FromRecord(&record)
}

// FromRecord rebuilds a StoredEnvelope from its on-disk struct.
func FromRecord(record *structpb.Struct) (StoredEnvelope, error) {
	fields := record.GetFields()
	epoch, err := strconv.ParseUint(fields["epoch"].GetStringValue(), 10, 64)
	if err != nil {
		return StoredEnvelope{}, fmt.Errorf("invalid epoch: %w", err)
	}
	seq, err := strconv.ParseUint(fields["sequence"].GetStringValue(), 10, 64)
	if err != nil {
		return StoredEnvelope{}, fmt.Errorf("invalid sequence: %w", err)
	}
	ms, err := strconv.ParseInt(fields["timestamp"].GetStringValue(), 10, 64)
	if err != nil {
		return StoredEnvelope{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	payload, err := protojson.Marshal(fields["payload"].GetStructValue())
	if err != nil {
		return StoredEnvelope{}, err
	}
	return StoredEnvelope{
		EventID:   fields["eventId"].GetStringValue(),
		Epoch:     epoch,
		Sequence:  seq,
		Type:      envelope.Type(fields["type"].GetStringValue()),
		SenderID:  fields["senderId"].GetStringValue(),
		Timestamp: time.UnixMilli(ms).UTC(),
		Payload:   payload,
	}, nil
}
