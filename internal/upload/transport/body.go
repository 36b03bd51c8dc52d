package transport

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/cuongbtq/bg-uploader/internal/upload/domain"
)

const defaultContentType = "application/octet-stream"

// requestBody is the encoded body of one upload attempt
type requestBody struct {
	io.ReadCloser
	contentType string
	length      int64 // -1 when streamed without a known length
	total       int64 // bytes of file content, used for progress
}

func newBody(job domain.Job) (*requestBody, error) {
	switch job.Kind {
	case domain.KindRawBody:
		return newRawBody(job)
	case domain.KindMultipart:
		return newMultipartBody(job)
	default:
		return nil, fmt.Errorf("unsupported request kind %q", job.Kind)
	}
}

func newRawBody(job domain.Job) (*requestBody, error) {
	if len(job.Files) != 1 {
		return nil, fmt.Errorf("raw upload needs exactly one file, got %d", len(job.Files))
	}
	file := job.Files[0]

	f, err := os.Open(file.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return &requestBody{
		ReadCloser:  f,
		contentType: contentTypeOf(file),
		length:      info.Size(),
		total:       info.Size(),
	}, nil
}

func newMultipartBody(job domain.Job) (*requestBody, error) {
	var total int64
	for _, file := range job.Files {
		info, err := os.Stat(file.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat file: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", file.Path)
		}
		total += info.Size()
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeMultipart(mw, job))
	}()

	return &requestBody{
		ReadCloser:  pr,
		contentType: mw.FormDataContentType(),
		length:      -1,
		total:       total,
	}, nil
}

// writeMultipart writes form parameters in the order given, then files
func writeMultipart(mw *multipart.Writer, job domain.Job) error {
	for _, p := range job.Parameters {
		if err := mw.WriteField(p.Name, p.Value); err != nil {
			return err
		}
	}

	for _, file := range job.Files {
		if err := writeFilePart(mw, file); err != nil {
			return err
		}
	}

	return mw.Close()
}

func writeFilePart(mw *multipart.Writer, file domain.File) error {
	remoteName := file.RemoteName
	if strings.TrimSpace(remoteName) == "" {
		remoteName = filepath.Base(file.Path)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(file.FieldName), escapeQuotes(remoteName)))
	header.Set("Content-Type", contentTypeOf(file))

	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}

	f, err := os.Open(file.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(part, f)
	return err
}

// contentTypeOf returns the declared content type or detects it from the file
func contentTypeOf(file domain.File) string {
	if strings.TrimSpace(file.ContentType) != "" {
		return file.ContentType
	}

	mtype, err := mimetype.DetectFile(file.Path)
	if err != nil {
		return defaultContentType
	}
	return mtype.String()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
