// Package ingest turns a multipart request body into stored files.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"

	"telegramd/internal/domain"
)

// Sink is where part bodies are written.
type Sink interface {
	Write(filename string, r io.Reader) (domain.StoredFile, error)
}

// Ingestor stores every part of a multipart body through a Sink.
type Ingestor struct {
	sink   Sink
	logger *slog.Logger
}

func New(sink Sink, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{sink: sink, logger: logger.With("component", "ingest")}
}

// Ingest reads parts in arrival order and stores each one. The first part
// without a filename, or the first failed write, aborts the whole batch.
// Files already written by earlier parts stay on disk. A body with no parts
// at all yields an empty batch.
func (in *Ingestor) Ingest(ctx context.Context, mr *multipart.Reader) (domain.UploadBatch, error) {
	batch := domain.UploadBatch{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("ingest: %w", err)
		}

		part, err := mr.NextPart()
		if err == io.EOF {
			return batch, nil
		}
		// A body that ends before any boundary (empty, or preamble only)
		// carries no files. After the first part a wrapped EOF means the
		// closing boundary is missing.
		if len(batch) == 0 && errors.Is(err, io.EOF) {
			in.logger.Debug("multipart body has no parts")
			return batch, nil
		}
		if err != nil {
			return nil, fmt.Errorf("ingest: read multipart: %w", err)
		}

		sf, err := in.storePart(part)
		part.Close()
		if err != nil {
			return nil, err
		}
		batch = append(batch, sf)
	}
}

func (in *Ingestor) storePart(part *multipart.Part) (domain.StoredFile, error) {
	filename := part.FileName()
	if filename == "" {
		in.logger.Warn("multipart part without filename", "field", part.FormName())
		return domain.StoredFile{}, fmt.Errorf("ingest: part %q: %w", part.FormName(), domain.ErrMissingFilename)
	}

	in.logger.Info("saving file", "filename", filename)
	sf, err := in.sink.Write(filename, part)
	if err != nil {
		return domain.StoredFile{}, fmt.Errorf("ingest: %w", err)
	}
	return sf, nil
}
