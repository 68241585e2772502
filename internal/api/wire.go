package api

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// The broadcast wire format: little-endian fixed-width integers, u32
// length-prefixed byte strings, and one leading tag byte per tagged union.

var (
	// ErrShortBuffer is returned when decoding runs off the end of input.
	ErrShortBuffer = errors.New("wire: short buffer")
	// ErrTrailingBytes is returned when decoding leaves unread input.
	ErrTrailingBytes = errors.New("wire: trailing bytes")
)

// Writer accumulates the canonical binary encoding.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
}

func (w *Writer) WriteUint16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *Writer) WriteUint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) WriteUint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *Writer) WriteBytes(b []byte) {
	w.WriteUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *Writer) WriteString(s string) {
	w.WriteBytes([]byte(s))
}

// Reader consumes a canonical binary encoding.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader wraps the given buffer.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Err returns the first decoding error, if any.
func (r *Reader) Err() error {
	return r.err
}

// Close verifies the whole input has been consumed.
func (r *Reader) Close() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.buf) {
		return ErrTrailingBytes
	}
	return nil
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = ErrShortBuffer
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) ReadUint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) ReadBool() bool {
	return r.ReadUint8() != 0
}

func (r *Reader) ReadUint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) ReadUint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) ReadUint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *Reader) ReadBytes() []byte {
	n := int(r.ReadUint32())
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (r *Reader) ReadString() string {
	return string(r.ReadBytes())
}

// WriteLen writes a collection length.
func (w *Writer) WriteLen(n int) {
	w.WriteUint32(uint32(n))
}

// ReadLen reads a collection length.
func (r *Reader) ReadLen() int {
	return int(r.ReadUint32())
}

func writeSecretShare(w *Writer, s SecretShare) {
	w.WriteUint8(uint8(s.Kind))
	switch s.Kind {
	case SecretShareRandom:
		w.WriteString(s.FromAddr)
		w.WriteString(s.ToAddr)
		w.WriteUint32(uint32(s.RandomID))
		w.WriteUint32(uint32(s.Index))
		w.WriteBytes(s.Secret)
	case SecretShareAnswer:
		w.WriteString(s.FromAddr)
		w.WriteUint32(uint32(s.DecisionID))
		w.WriteBytes(s.Secret)
	}
}

func readSecretShare(r *Reader) SecretShare {
	var s SecretShare
	s.Kind = SecretShareKind(r.ReadUint8())
	switch s.Kind {
	case SecretShareRandom:
		s.FromAddr = r.ReadString()
		s.ToAddr = r.ReadString()
		s.RandomID = int(r.ReadUint32())
		s.Index = int(r.ReadUint32())
		s.Secret = r.ReadBytes()
	case SecretShareAnswer:
		s.FromAddr = r.ReadString()
		s.DecisionID = int(r.ReadUint32())
		s.Secret = r.ReadBytes()
	}
	return s
}

// EncodeEvent produces the canonical wire encoding of an event.
func EncodeEvent(e *Event) []byte {
	w := NewWriter()
	w.WriteUint8(uint8(e.Kind))
	switch e.Kind {
	case EventCustom:
		w.WriteUint64(e.Sender)
		w.WriteBytes(e.Raw)
	case EventShareSecrets:
		w.WriteUint64(e.Sender)
		w.WriteLen(len(e.Shares))
		for _, s := range e.Shares {
			writeSecretShare(w, s)
		}
	case EventOperationTimeout:
		w.WriteLen(len(e.IDs))
		for _, id := range e.IDs {
			w.WriteUint64(id)
		}
	case EventMask:
		w.WriteUint64(e.Sender)
		w.WriteUint32(uint32(e.RandomID))
		w.WriteLen(len(e.Ciphertexts))
		for _, c := range e.Ciphertexts {
			w.WriteBytes(c)
		}
	case EventLock:
		w.WriteUint64(e.Sender)
		w.WriteUint32(uint32(e.RandomID))
		w.WriteLen(len(e.CiphertextsAndDigests))
		for _, cd := range e.CiphertextsAndDigests {
			w.WriteBytes(cd.Ciphertext)
			w.WriteBytes(cd.Digest)
		}
	case EventRandomnessReady:
		w.WriteUint32(uint32(e.RandomID))
	case EventJoin:
		w.WriteLen(len(e.Players))
		for _, p := range e.Players {
			w.WriteUint64(p.ID)
			w.WriteUint16(p.Position)
		}
	case EventDeposit:
		w.WriteLen(len(e.Deposits))
		for _, d := range e.Deposits {
			w.WriteUint64(d.ID)
			w.WriteUint64(d.Balance)
			w.WriteUint64(d.AccessVersion)
		}
	case EventServerLeave:
		w.WriteUint64(e.ServerID)
	case EventLeave:
		w.WriteUint64(e.PlayerID)
	case EventDrawRandomItems:
		w.WriteUint64(e.Sender)
		w.WriteUint32(uint32(e.RandomID))
		w.WriteLen(len(e.Indexes))
		for _, i := range e.Indexes {
			w.WriteUint32(uint32(i))
		}
	case EventActionTimeout:
		w.WriteUint64(e.PlayerID)
	case EventAnswerDecision:
		w.WriteUint64(e.Sender)
		w.WriteUint32(uint32(e.DecisionID))
		w.WriteBytes(e.Ciphertext)
		w.WriteBytes(e.Digest)
	case EventSecretsReady:
		w.WriteLen(len(e.RandomIDs))
		for _, id := range e.RandomIDs {
			w.WriteUint32(uint32(id))
		}
	case EventBridge:
		w.WriteUint32(uint32(e.DestGameID))
		w.WriteUint32(uint32(e.FromGameID))
		w.WriteBytes(e.Raw)
	case EventSubGameReady:
		w.WriteUint32(uint32(e.GameID))
		w.WriteUint16(e.MaxPlayers)
		w.WriteBytes(e.InitData)
	case EventReady, EventGameStart, EventWaitingTimeout, EventDrawTimeout, EventShutdown:
		// tag only
	}
	return w.Bytes()
}

// DecodeEvent parses a canonical wire encoding.
func DecodeEvent(data []byte) (*Event, error) {
	r := NewReader(data)
	e := &Event{Kind: EventKind(r.ReadUint8())}
	switch e.Kind {
	case EventCustom:
		e.Sender = r.ReadUint64()
		e.Raw = r.ReadBytes()
	case EventShareSecrets:
		e.Sender = r.ReadUint64()
		n := r.ReadLen()
		for i := 0; i < n && r.Err() == nil; i++ {
			e.Shares = append(e.Shares, readSecretShare(r))
		}
	case EventOperationTimeout:
		n := r.ReadLen()
		for i := 0; i < n && r.Err() == nil; i++ {
			e.IDs = append(e.IDs, r.ReadUint64())
		}
	case EventMask:
		e.Sender = r.ReadUint64()
		e.RandomID = int(r.ReadUint32())
		n := r.ReadLen()
		for i := 0; i < n && r.Err() == nil; i++ {
			e.Ciphertexts = append(e.Ciphertexts, r.ReadBytes())
		}
	case EventLock:
		e.Sender = r.ReadUint64()
		e.RandomID = int(r.ReadUint32())
		n := r.ReadLen()
		for i := 0; i < n && r.Err() == nil; i++ {
			e.CiphertextsAndDigests = append(e.CiphertextsAndDigests, CiphertextAndDigest{
				Ciphertext: r.ReadBytes(),
				Digest:     r.ReadBytes(),
			})
		}
	case EventRandomnessReady:
		e.RandomID = int(r.ReadUint32())
	case EventJoin:
		n := r.ReadLen()
		for i := 0; i < n && r.Err() == nil; i++ {
			e.Players = append(e.Players, GamePlayer{ID: r.ReadUint64(), Position: r.ReadUint16()})
		}
	case EventDeposit:
		n := r.ReadLen()
		for i := 0; i < n && r.Err() == nil; i++ {
			e.Deposits = append(e.Deposits, GameDeposit{
				ID:            r.ReadUint64(),
				Balance:       r.ReadUint64(),
				AccessVersion: r.ReadUint64(),
			})
		}
	case EventServerLeave:
		e.ServerID = r.ReadUint64()
	case EventLeave:
		e.PlayerID = r.ReadUint64()
	case EventDrawRandomItems:
		e.Sender = r.ReadUint64()
		e.RandomID = int(r.ReadUint32())
		n := r.ReadLen()
		for i := 0; i < n && r.Err() == nil; i++ {
			e.Indexes = append(e.Indexes, int(r.ReadUint32()))
		}
	case EventActionTimeout:
		e.PlayerID = r.ReadUint64()
	case EventAnswerDecision:
		e.Sender = r.ReadUint64()
		e.DecisionID = int(r.ReadUint32())
		e.Ciphertext = r.ReadBytes()
		e.Digest = r.ReadBytes()
	case EventSecretsReady:
		n := r.ReadLen()
		for i := 0; i < n && r.Err() == nil; i++ {
			e.RandomIDs = append(e.RandomIDs, int(r.ReadUint32()))
		}
	case EventBridge:
		e.DestGameID = int(r.ReadUint32())
		e.FromGameID = int(r.ReadUint32())
		e.Raw = r.ReadBytes()
	case EventSubGameReady:
		e.GameID = int(r.ReadUint32())
		e.MaxPlayers = r.ReadUint16()
		e.InitData = r.ReadBytes()
	case EventReady, EventGameStart, EventWaitingTimeout, EventDrawTimeout, EventShutdown:
		// tag only
	default:
		return nil, fmt.Errorf("wire: unknown event tag %d", e.Kind)
	}
	if err := r.Close(); err != nil {
		return nil, err
	}
	return e, nil
}
