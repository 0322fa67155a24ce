package fingerprint

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/turtacn/pcfp/pkg/errors"
)

const (
	// ByteLen is the packed length of the bit vector.
	ByteLen = (Size + 7) / 8
	// VectorDim is the binary vector dimension used by vector indexes:
	// ByteLen bytes, the last seven bits always zero.
	VectorDim = ByteLen * 8

	headerLen = 4
)

// Bytes packs the fingerprint most significant bit first: bit 0 is the
// high bit of byte 0.
func (f *Fingerprint) Bytes() []byte {
	out := make([]byte, ByteLen)
	for _, i := range f.OnBits() {
		out[i/8] |= 0x80 >> uint(i%8)
	}
	return out
}

// FromBytes is the inverse of Bytes. Padding bits must be zero.
func FromBytes(b []byte) (*Fingerprint, error) {
	if len(b) != ByteLen {
		return nil, invalidEncoding("want %d bytes, got %d", ByteLen, len(b))
	}
	fp := newFingerprint()
	for i := 0; i < VectorDim; i++ {
		if b[i/8]&(0x80>>uint(i%8)) == 0 {
			continue
		}
		if i >= Size {
			return nil, invalidEncoding("padding bit %d is set", i)
		}
		fp.set(i)
	}
	return fp, nil
}

// Base64 returns the PubChem CACTVS encoding: a 4-byte big-endian bit
// count followed by the packed bits.
func (f *Fingerprint) Base64() string {
	buf := make([]byte, headerLen+ByteLen)
	binary.BigEndian.PutUint32(buf, Size)
	copy(buf[headerLen:], f.Bytes())
	return base64.StdEncoding.EncodeToString(buf)
}

// ParseBase64 decodes the PubChem CACTVS encoding.
func ParseBase64(s string) (*Fingerprint, error) {
	buf, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidFingerprintEncoding, "fingerprint is not valid base64")
	}
	if len(buf) != headerLen+ByteLen {
		return nil, invalidEncoding("want %d decoded bytes, got %d", headerLen+ByteLen, len(buf))
	}
	if n := binary.BigEndian.Uint32(buf); n != Size {
		return nil, invalidEncoding("bit count header is %d, want %d", n, Size)
	}
	return FromBytes(buf[headerLen:])
}

// Hex returns the packed bits as lowercase hex.
func (f *Fingerprint) Hex() string {
	return hex.EncodeToString(f.Bytes())
}

// ParseHex decodes Hex output.
func ParseHex(s string) (*Fingerprint, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidFingerprintEncoding, "fingerprint is not valid hex")
	}
	return FromBytes(b)
}

// BinaryVector returns the packed bits for a VectorDim-wide binary vector field.
func (f *Fingerprint) BinaryVector() []byte {
	return f.Bytes()
}

// String returns the Base64 form.
func (f *Fingerprint) String() string {
	return f.Base64()
}

// MarshalJSON encodes the fingerprint as its Base64 string.
func (f *Fingerprint) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Base64())
}

// UnmarshalJSON accepts the Base64 string form.
func (f *Fingerprint) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidFingerprintEncoding, "fingerprint must be a JSON string")
	}
	parsed, err := ParseBase64(s)
	if err != nil {
		return err
	}
	f.bits = parsed.bits
	return nil
}

func invalidEncoding(format string, args ...interface{}) error {
	return errors.New(errors.ErrCodeInvalidFingerprintEncoding, "invalid fingerprint encoding").
		WithDetail(fmt.Sprintf(format, args...))
}
