package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"unicode/utf8"
)

// NoteContentType is the content type notes are stored and served with.
const NoteContentType = "text/plain; charset=utf-8"

// MaxNoteSize bounds how much of a stored note ReadNote will load.
const MaxNoteSize int64 = 4 << 20

// CheckNote reports whether data can be used as clinical note text.
func CheckNote(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return ErrEmptyNote
	}
	if !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
		return ErrNotText
	}
	return nil
}

// ReadNote loads the note at key and checks it with CheckNote.
func ReadNote(ctx context.Context, s System, key string) (string, error) {
	body, err := s.Download(ctx, key)
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, MaxNoteSize+1))
	if err != nil {
		return "", fmt.Errorf("read note %s: %w", key, err)
	}
	if int64(len(data)) > MaxNoteSize {
		return "", fmt.Errorf("%w: %s", ErrNoteTooLarge, key)
	}
	if err := CheckNote(data); err != nil {
		return "", fmt.Errorf("%w: %s", err, key)
	}
	return string(data), nil
}
