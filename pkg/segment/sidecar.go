package segment

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// maxSidecarBytes bounds how much of a sidecar file is read.
const maxSidecarBytes = 1 << 20

// ReadSidecar returns the normalized transcript text stored next to an
// audio file. A missing sidecar returns "", false, nil.
func ReadSidecar(path string) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxSidecarBytes+utf8.UTFMax))
	if err != nil {
		return "", false, err
	}
	data = cutAtRune(data, maxSidecarBytes)
	text, err := DecodeText(data)
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

// cutAtRune shortens data to at most n bytes without splitting a UTF-8
// sequence that continues past n.
func cutAtRune(data []byte, n int) []byte {
	if len(data) <= n {
		return data
	}
	for j := n - 1; j >= 0 && j > n-utf8.UTFMax; j-- {
		if !utf8.RuneStart(data[j]) {
			continue
		}
		if _, size := utf8.DecodeRune(data[j:]); size > 1 && j+size > n {
			return data[:j]
		}
		break
	}
	return data[:n]
}

// DecodeText decodes UTF-8 text, falling back to Windows-1252 for legacy
// files, and collapses whitespace.
func DecodeText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	s := string(data)
	if !utf8.Valid(data) {
		decoded, _, err := transform.String(charmap.Windows1252.NewDecoder(), s)
		if err != nil {
			return "", err
		}
		s = decoded
	}
	return strings.Join(strings.Fields(s), " "), nil
}
