package dataset

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// Stored examples are gzip streams of records. Every record is framed as
//
//	uint64 length | uint32 masked crc32c(length) | payload | uint32 masked crc32c(payload)
//
// and its payload is a protobuf message with repeated entries
// (field 1) of {1: key, 2: little-endian float32 values}.

var crc32c = crc32.MakeTable(crc32.Castagnoli)

const crcMaskDelta = 0xa282ead8

// MaxRecordSize bounds the payload of a single record.
const MaxRecordSize = 256 << 20

func maskedCRC(data []byte) uint32 {
	var crc = crc32.Checksum(data, crc32c)
	return ((crc >> 15) | (crc << 17)) + crcMaskDelta
}

// Example maps keys like "Diffuse Color_source_3" to raw values.
type Example map[string][]float32

type RecordWriter struct {
	gz *gzip.Writer
	w  *bufio.Writer
}

func NewRecordWriter(w io.Writer) *RecordWriter {
	var gz = gzip.NewWriter(w)
	return &RecordWriter{gz: gz, w: bufio.NewWriter(gz)}
}

func (rw *RecordWriter) WriteRecord(payload []byte) error {
	if len(payload) > MaxRecordSize {
		return fmt.Errorf("record of %d bytes exceeds %d", len(payload), MaxRecordSize)
	}
	var header = make([]byte, 12)
	binary.LittleEndian.PutUint64(header, uint64(len(payload)))
	binary.LittleEndian.PutUint32(header[8:], maskedCRC(header[:8]))
	var footer = make([]byte, 4)
	binary.LittleEndian.PutUint32(footer, maskedCRC(payload))
	for _, b := range [][]byte{header, payload, footer} {
		if _, err := rw.w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

func (rw *RecordWriter) WriteExample(example Example) error {
	return rw.WriteRecord(MarshalExample(example))
}

// Close flushes the stream. It does not close the underlying writer.
func (rw *RecordWriter) Close() error {
	if err := rw.w.Flush(); err != nil {
		return err
	}
	return rw.gz.Close()
}

type RecordReader struct {
	r *bufio.Reader
}

func NewRecordReader(r io.Reader) (*RecordReader, error) {
	var gz, err = gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &RecordReader{r: bufio.NewReader(gz)}, nil
}

// ReadRecord returns io.EOF after the last record.
func (rr *RecordReader) ReadRecord() ([]byte, error) {
	var header = make([]byte, 12)
	if _, err := io.ReadFull(rr.r, header); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("truncated record header")
		}
		return nil, err
	}
	if maskedCRC(header[:8]) != binary.LittleEndian.Uint32(header[8:]) {
		return nil, fmt.Errorf("corrupted record length")
	}
	var length = binary.LittleEndian.Uint64(header)
	if length > MaxRecordSize {
		return nil, fmt.Errorf("record of %d bytes exceeds %d", length, MaxRecordSize)
	}
	var payload = make([]byte, length+4)
	if _, err := io.ReadFull(rr.r, payload); err != nil {
		return nil, fmt.Errorf("truncated record: %w", err)
	}
	var footer = payload[length:]
	payload = payload[:length]
	if maskedCRC(payload) != binary.LittleEndian.Uint32(footer) {
		return nil, fmt.Errorf("corrupted record payload")
	}
	return payload, nil
}

const (
	entryField = 1
	keyField   = 1
	valueField = 2
)

// MarshalExample encodes entries in key order.
func MarshalExample(example Example) []byte {
	var keys = make([]string, 0, len(example))
	for key := range example {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b []byte
	for _, key := range keys {
		var values = example[key]
		var raw = make([]byte, 4*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
		}
		var entry []byte
		entry = protowire.AppendTag(entry, keyField, protowire.BytesType)
		entry = protowire.AppendString(entry, key)
		entry = protowire.AppendTag(entry, valueField, protowire.BytesType)
		entry = protowire.AppendBytes(entry, raw)

		b = protowire.AppendTag(b, entryField, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

// UnmarshalExample decodes the entries for which keep returns true; keep may
// be nil to decode everything.
func UnmarshalExample(b []byte, keep func(key string) bool) (Example, error) {
	var example = make(Example)
	for len(b) > 0 {
		var num, typ, n = protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		if num != entryField || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		var entry []byte
		entry, n = protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		var key, raw, err = unmarshalEntry(entry)
		if err != nil {
			return nil, err
		}
		if keep != nil && !keep(key) {
			continue
		}
		if len(raw)%4 != 0 {
			return nil, fmt.Errorf("%v: %d bytes are not float32 values", key, len(raw))
		}
		var values = make([]float32, len(raw)/4)
		for i := range values {
			values[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
		}
		example[key] = values
	}
	return example, nil
}

func unmarshalEntry(b []byte) (key string, raw []byte, err error) {
	for len(b) > 0 {
		var num, typ, n = protowire.ConsumeTag(b)
		if n < 0 {
			return "", nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == keyField && typ == protowire.BytesType:
			key, n = protowire.ConsumeString(b)
		case num == valueField && typ == protowire.BytesType:
			raw, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return "", nil, protowire.ParseError(n)
		}
		b = b[n:]
	}
	return key, raw, nil
}
