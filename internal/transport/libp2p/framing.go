package libp2p

import (
	"fmt"
	"io"

	"github.com/multiformats/go-varint"
)

// writeFrame 写入 varint 长度前缀与负载
func writeFrame(w io.Writer, payload []byte, limit uint64) error {
	if limit > 0 && uint64(len(payload)) > limit {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), limit)
	}
	if _, err := w.Write(varint.ToUvarint(uint64(len(payload)))); err != nil {
		return fmt.Errorf("failed to write length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	return nil
}

// readFrame 读取一帧，长度超过 limit 时不读取负载
func readFrame(r io.Reader, limit uint64) ([]byte, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = &byteReader{r: r}
	}
	length, err := varint.ReadUvarint(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read length: %w", err)
	}
	if limit > 0 && length > limit {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, limit)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	return data, nil
}

// byteReader 逐字节读取，不预读，保证长度前缀之后的数据仍留在流中
type byteReader struct {
	r   io.Reader
	buf [1]byte
}

func (b *byteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(b.r, b.buf[:]); err != nil {
		return 0, err
	}
	return b.buf[0], nil
}
