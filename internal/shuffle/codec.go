package shuffle

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"mini-shuffle/internal/common"
)

// Block wire format, version 1:
//
//	1 byte   format version (0x01)
//	repeated uint32 keyLen | key | uint32 valLen | val   (big endian)
//
// A clean EOF at a record boundary terminates the block; EOF anywhere
// else means the block is corrupt.

const codecVersion byte = 0x01

var ErrCorruptBlock = errors.New("corrupt shuffle block")

// blockWriter appends encoded records to a sink and tracks how many
// bytes it has written so the caller can enforce the block size bound.
type blockWriter struct {
	w       *bufio.Writer
	written int64
}

func newBlockWriter(w io.Writer) (*blockWriter, error) {
	bw := &blockWriter{w: bufio.NewWriter(w)}
	if err := bw.w.WriteByte(codecVersion); err != nil {
		return nil, err
	}
	bw.written = 1
	return bw, nil
}

func (b *blockWriter) WriteRecord(kv common.KeyValue) error {
	var lenBuf [4]byte
	for _, field := range []string{kv.Key, kv.Value} {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(field)))
		if _, err := b.w.Write(lenBuf[:]); err != nil {
			return err
		}
		if _, err := b.w.WriteString(field); err != nil {
			return err
		}
		b.written += 4 + int64(len(field))
	}
	return nil
}

// BytesWritten reports the encoded size so far, including buffered bytes.
func (b *blockWriter) BytesWritten() int64 { return b.written }

func (b *blockWriter) Flush() error { return b.w.Flush() }

// DecodeBlock parses one raw block into its records. Reaching the end
// of the buffer at a record boundary is the normal termination, not an
// error.
func DecodeBlock(raw []byte) ([]common.KeyValue, error) {
	r := bytes.NewReader(raw)
	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: empty block", ErrCorruptBlock)
	}
	if version != codecVersion {
		return nil, fmt.Errorf("%w: unknown format version %d", ErrCorruptBlock, version)
	}

	var records []common.KeyValue
	for {
		key, err := readField(r)
		if err == io.EOF {
			return records, nil // clean end of block
		}
		if err != nil {
			return nil, err
		}
		val, err := readField(r)
		if err != nil {
			return nil, fmt.Errorf("%w: record truncated after key %q", ErrCorruptBlock, key)
		}
		records = append(records, common.KeyValue{Key: key, Value: val})
	}
}

func readField(r *bytes.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return "", io.EOF
		}
		return "", fmt.Errorf("%w: truncated length prefix", ErrCorruptBlock)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	field := make([]byte, n)
	if _, err := io.ReadFull(r, field); err != nil {
		return "", fmt.Errorf("%w: truncated field body", ErrCorruptBlock)
	}
	return string(field), nil
}
