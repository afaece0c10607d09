package sefaz

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
)

// maxDocZip limite do XML descompactado de um docZip (proteção contra gzip bomb).
const maxDocZip = 10 << 20

// DecodeDocZip decodifica o conteúdo de <docZip>: base64 de um gzip.
func DecodeDocZip(b64 string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("docZip: base64 inválido: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("docZip: gzip inválido: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, maxDocZip+1))
	if err != nil {
		return nil, fmt.Errorf("docZip: descompactar: %w", err)
	}
	if len(out) > maxDocZip {
		return nil, fmt.Errorf("docZip: conteúdo excede %d bytes", maxDocZip)
	}
	return out, nil
}

// EncodeDocZip gzip + base64; formato do cteDadosMsg da recepção síncrona.
func EncodeDocZip(content []byte) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(content); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
