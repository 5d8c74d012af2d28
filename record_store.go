package cloudauth

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
)

const (
	recordKeyPrefix     = "dcr"
	recordFormatVersion = 1
)

var (
	// ErrRecordNotFound is returned when no credential record is
	// persisted for the device.
	ErrRecordNotFound = errors.New("device credential record not found")
	errRecordBackend  = errors.New("device credential store unavailable")
	errRecordCorrupt  = errors.New("device credential record corrupt")
)

// DeviceRecordStore persists DeviceCredentialRecords per account. The
// secret fields travel with their state tag, so a Pending marker
// round-trips as Pending instead of decaying into a magic string.
type DeviceRecordStore struct {
	redis  *redis.Client
	prefix string
}

// NewDeviceRecordStore returns a store on the given redis client.
func NewDeviceRecordStore(client *redis.Client, prefix string) *DeviceRecordStore {
	if prefix == "" {
		prefix = recordKeyPrefix
	}
	return &DeviceRecordStore{redis: client, prefix: prefix}
}

func (s *DeviceRecordStore) key(account, serial string) string {
	return s.prefix + ":" + account + ":" + serial
}

// Save persists the record under the account.
func (s *DeviceRecordStore) Save(ctx context.Context, account string, rec *DeviceCredentialRecord) error {
	blob, err := encodeDeviceRecord(rec)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(account, rec.DeviceID), blob, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", errRecordBackend, err)
	}
	return nil
}

// Load reads one record.
func (s *DeviceRecordStore) Load(ctx context.Context, account, serial string) (*DeviceCredentialRecord, error) {
	data, err := s.redis.Get(ctx, s.key(account, serial)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: %v", errRecordBackend, err)
	}
	return decodeDeviceRecord(data)
}

// Merge loads any persisted record for the device, merges the incoming
// one against it under the duplicate rules, and persists the result.
// Conflicting concrete data surfaces ErrDuplicateDevice without a write.
func (s *DeviceRecordStore) Merge(ctx context.Context, account string, rec *DeviceCredentialRecord) (*DeviceCredentialRecord, error) {
	existing, err := s.Load(ctx, account, rec.DeviceID)
	if err != nil {
		if !errors.Is(err, ErrRecordNotFound) {
			return nil, err
		}
		existing = nil
	}

	merged := rec
	if existing != nil {
		merged, err = MergeRecords(existing, rec)
		if err != nil {
			return nil, err
		}
	}
	if err := s.Save(ctx, account, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// Delete drops one record. Absent records are not an error.
func (s *DeviceRecordStore) Delete(ctx context.Context, account, serial string) error {
	if err := s.redis.Del(ctx, s.key(account, serial)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errRecordBackend, err)
	}
	return nil
}

func writeSecret(buf *bytes.Buffer, s Secret) error {
	buf.WriteByte(byte(s.State()))
	return writeRecordString(buf, s.Value())
}

func readSecret(r *bytes.Reader) (Secret, error) {
	state, err := r.ReadByte()
	if err != nil {
		return Secret{}, errRecordCorrupt
	}
	value, err := readRecordString(r)
	if err != nil {
		return Secret{}, err
	}
	switch SecretState(state) {
	case SecretUnset:
		return Secret{}, nil
	case SecretPending:
		return PendingSecret(), nil
	case SecretResolved:
		return ResolvedSecret(value), nil
	default:
		return Secret{}, errRecordCorrupt
	}
}

func writeRecordString(buf *bytes.Buffer, v string) error {
	if len(v) > 65535 {
		return errors.New("record field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(v))); err != nil {
		return err
	}
	buf.WriteString(v)
	return nil
}

func readRecordString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", errRecordCorrupt
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", errRecordCorrupt
	}
	return string(b), nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func encodeDeviceRecord(rec *DeviceCredentialRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(recordFormatVersion)

	for _, field := range []string{rec.DeviceID, rec.Username, rec.StreamPath} {
		if err := writeRecordString(&buf, field); err != nil {
			return nil, err
		}
	}
	if err := writeSecret(&buf, rec.VerificationCode); err != nil {
		return nil, err
	}
	if err := writeSecret(&buf, rec.EncryptionKey); err != nil {
		return nil, err
	}
	buf.WriteByte(boolByte(rec.UsesVerificationCodeForStream))
	buf.WriteByte(boolByte(rec.Capabilities.SupportsVerificationCode))
	buf.WriteByte(boolByte(rec.Capabilities.SupportsEncryptionKey))
	buf.WriteByte(boolByte(rec.Capabilities.SupportsStream))

	return buf.Bytes(), nil
}

func decodeDeviceRecord(data []byte) (*DeviceCredentialRecord, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil || version != recordFormatVersion {
		return nil, errRecordCorrupt
	}

	rec := &DeviceCredentialRecord{}
	for _, dst := range []*string{&rec.DeviceID, &rec.Username, &rec.StreamPath} {
		v, err := readRecordString(r)
		if err != nil {
			return nil, err
		}
		*dst = v
	}
	if rec.VerificationCode, err = readSecret(r); err != nil {
		return nil, err
	}
	if rec.EncryptionKey, err = readSecret(r); err != nil {
		return nil, err
	}

	flags := make([]byte, 4)
	if _, err := io.ReadFull(r, flags); err != nil {
		return nil, errRecordCorrupt
	}
	rec.UsesVerificationCodeForStream = flags[0] == 1
	rec.Capabilities = DeviceCapabilities{
		SupportsVerificationCode: flags[1] == 1,
		SupportsEncryptionKey:    flags[2] == 1,
		SupportsStream:           flags[3] == 1,
	}
	return rec, nil
}
