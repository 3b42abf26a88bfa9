package service

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"unicode/utf8"
)

// absolutePath maps a captured request path onto the root of the filesystem.
func absolutePath(name string) string {
	return "/" + strings.TrimLeft(name, "/")
}

func (p *probe) ReadFile(name string) (*FileContent, error) {
	path := absolutePath(name)

	info, err := os.Stat(path)
	if err != nil {
		return nil, p.fileError(err, name, "error reading file")
	}

	if !info.Mode().IsRegular() {
		return nil, newError(KindValidation, "not a file: %s", name)
	}

	if info.Size() > p.maxFileBytes {
		return nil, newError(KindSizeLimit, "file too large: %d bytes (max %d bytes)", info.Size(), p.maxFileBytes)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, p.fileError(err, name, "error reading file")
	}
	defer file.Close()

	// the file may have grown since the stat
	data, err := io.ReadAll(io.LimitReader(file, p.maxFileBytes+1))
	if err != nil {
		return nil, p.fileError(err, name, "error reading file")
	}
	if int64(len(data)) > p.maxFileBytes {
		return nil, newError(KindSizeLimit, "file too large: more than %d bytes", p.maxFileBytes)
	}

	content, ok := decodeText(data)
	if !ok {
		p.log.Warn("file is not valid UTF-8, replacement characters substituted", slog.String("file", path))
	}

	return &FileContent{
		File:    name,
		Size:    utf8.RuneCountInString(content),
		Content: content,
	}, nil
}

func (p *probe) WriteFile(name string, content string) (*WriteResult, error) {
	if int64(len(content)) > p.maxFileBytes {
		return nil, newError(KindSizeLimit, "content too large: %d bytes (max %d bytes)", len(content), p.maxFileBytes)
	}

	path := absolutePath(name)

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return nil, newError(KindValidation, "cannot write to directory: %s", name)
	}

	parent := filepath.Dir(path)
	if _, err := os.Stat(parent); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			if errors.Is(err, fs.ErrPermission) {
				return nil, newError(KindPermission, "cannot create parent directory: %s", parent)
			}
			return nil, wrapError(KindInternal, err, "error writing file")
		}
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		switch {
		case errors.Is(err, syscall.EISDIR):
			return nil, newError(KindValidation, "cannot write to directory: %s", name)
		case errors.Is(err, syscall.ENOTDIR):
			return nil, wrapError(KindInternal, err, "error writing file")
		}
		return nil, p.fileError(err, name, "error writing file")
	}

	p.log.Info("file written", slog.String("file", path), slog.Int("bytes", len(content)))

	// counted the same way ReadFile reports size
	return &WriteResult{
		Status: "written",
		File:   name,
		Bytes:  utf8.RuneCountInString(content),
	}, nil
}

// fileError classifies an OS error for name. A path whose prefix is not a
// directory does not exist either.
func (p *probe) fileError(err error, name string, msg string) error {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
		return newError(KindNotFound, "file not found: %s", name)
	case errors.Is(err, fs.ErrPermission):
		return newError(KindPermission, "permission denied: %s", name)
	case errors.Is(err, syscall.EISDIR):
		return newError(KindValidation, "is a directory: %s", name)
	default:
		p.log.Error(msg, slog.String("file", name), slog.Any("err", err))
		return wrapError(KindInternal, err, "%s", msg)
	}
}
