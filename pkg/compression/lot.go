package compression

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

var (
	// ErrCompression is returned when the zip container cannot be written or read
	ErrCompression = errors.New("lot compression failed")
	// ErrEncoding is returned for invalid UTF-8 text or invalid base64
	ErrEncoding = errors.New("lot encoding failed")
)

const (
	// LotEntryName is the name of the single file inside the zip container
	LotEntryName = "lote.xml"
	// MaxLotSize bounds the decompressed size accepted by Decode
	MaxLotSize = 64 << 20
)

// Encoder turns canonical lot text into the xDE wire payload and back:
// utf8 text, zip container with one deflated entry, standard base64.
type Encoder struct {
	level int
}

// NewEncoder creates an encoder with the default deflate level
func NewEncoder() *Encoder {
	return &Encoder{level: flate.DefaultCompression}
}

// NewEncoderWithLevel creates an encoder with the given deflate level
func NewEncoderWithLevel(level int) *Encoder {
	return &Encoder{level: level}
}

// Compress writes text into a zip container
func (e *Encoder) Compress(text string) ([]byte, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: lot text is not valid UTF-8", ErrEncoding)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	level := e.level
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	w, err := zw.Create(LotEntryName)
	if err != nil {
		zw.Close()
		return nil, fmt.Errorf("%w: %v", ErrCompression, err)
	}
	if _, err := io.WriteString(w, text); err != nil {
		zw.Close()
		return nil, fmt.Errorf("%w: %v", ErrCompression, err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompression, err)
	}
	return buf.Bytes(), nil
}

// Decompress reads the single entry of a zip container
func (e *Encoder) Decompress(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompression, err)
	}
	if len(zr.File) != 1 {
		return "", fmt.Errorf("%w: expected one entry, found %d", ErrCompression, len(zr.File))
	}

	rc, err := zr.File[0].Open()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompression, err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(rc, MaxLotSize+1))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompression, err)
	}
	if n > MaxLotSize {
		return "", fmt.Errorf("%w: lot exceeds %d bytes", ErrCompression, MaxLotSize)
	}
	if !utf8.Valid(buf.Bytes()) {
		return "", fmt.Errorf("%w: lot text is not valid UTF-8", ErrEncoding)
	}
	return buf.String(), nil
}

// Encode compresses text and returns its base64 form
func (e *Encoder) Encode(text string) (string, error) {
	data, err := e.Compress(text)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode is the exact inverse of Encode
func (e *Encoder) Decode(payload string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return e.Decompress(data)
}

// EncodeLot encodes lot text with the default encoder
func EncodeLot(text string) (string, error) {
	return NewEncoder().Encode(text)
}

// DecodeLot decodes an xDE payload with the default encoder
func DecodeLot(payload string) (string, error) {
	return NewEncoder().Decode(payload)
}
