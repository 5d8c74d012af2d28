package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const sessionFormatVersion1 = 1

var errSessionBlobCorrupt = errors.New("session blob corrupt")

func writeString(buf *bytes.Buffer, v string) error {
	if len(v) > 65535 {
		return errors.New("session field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(v))); err != nil {
		return err
	}
	buf.WriteString(v)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", errSessionBlobCorrupt
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", errSessionBlobCorrupt
	}
	return string(b), nil
}

// Encode serializes a Session into the versioned binary layout used by
// the redis store.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(sessionFormatVersion1)

	for _, field := range []string{s.SessionID, s.RefreshSessionID, s.APIHost, s.AccountUserID} {
		if err := writeString(&buf, field); err != nil {
			return nil, err
		}
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ValidSince); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a blob produced by Encode.
func Decode(data []byte) (*Session, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, errSessionBlobCorrupt
	}
	if version != sessionFormatVersion1 {
		return nil, errors.New("unknown session blob version")
	}

	s := &Session{}
	for _, dst := range []*string{&s.SessionID, &s.RefreshSessionID, &s.APIHost, &s.AccountUserID} {
		v, err := readString(r)
		if err != nil {
			return nil, err
		}
		*dst = v
	}
	if err := binary.Read(r, binary.BigEndian, &s.ValidSince); err != nil {
		return nil, errSessionBlobCorrupt
	}
	return s, nil
}
