package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegramd/internal/domain"
	"telegramd/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type testPart struct {
	field    string
	filename string // empty = plain form field
	content  string
}

func buildBody(t *testing.T, parts []testPart) *multipart.Reader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		var pw io.Writer
		var err error
		if p.filename != "" {
			pw, err = w.CreateFormFile(p.field, p.filename)
		} else {
			pw, err = w.CreateFormField(p.field)
		}
		require.NoError(t, err)
		_, err = io.WriteString(pw, p.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return multipart.NewReader(&buf, w.Boundary())
}

func newIngestor(t *testing.T) (*Ingestor, string) {
	root := t.TempDir()
	return New(storage.New(storage.Config{Root: root, Logger: testLogger()}), testLogger()), root
}

func TestIngest_PreservesOrderAndContent(t *testing.T) {
	in, root := newIngestor(t)
	parts := []testPart{
		{field: "file", filename: "one.txt", content: "first"},
		{field: "file", filename: "two.bin", content: "\x00\x01\x02"},
		{field: "other", filename: "three.md", content: "# third"},
	}
	mr := buildBody(t, parts)

	batch, err := in.Ingest(context.Background(), mr)
	require.NoError(t, err)
	require.Len(t, batch, len(parts))

	for i, p := range parts {
		assert.Equal(t, p.filename, batch[i].Name)
		assert.Equal(t, filepath.Join(root, p.filename), batch[i].Path)
		data, err := os.ReadFile(batch[i].Path)
		require.NoError(t, err)
		assert.Equal(t, p.content, string(data))
	}
}

func TestIngest_EmptyBody(t *testing.T) {
	in, _ := newIngestor(t)
	mr := buildBody(t, nil)

	batch, err := in.Ingest(context.Background(), mr)
	require.NoError(t, err)
	assert.NotNil(t, batch)
	assert.Empty(t, batch)
}

func TestIngest_MissingFilenameRejectsBatch(t *testing.T) {
	in, root := newIngestor(t)
	mr := buildBody(t, []testPart{
		{field: "file", filename: "ok.txt", content: "valid"},
		{field: "comment", content: "no filename here"},
		{field: "file", filename: "later.txt", content: "never stored"},
	})

	batch, err := in.Ingest(context.Background(), mr)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMissingFilename))
	assert.Nil(t, batch)

	// earlier parts are not rolled back, later parts are never read
	_, err = os.Stat(filepath.Join(root, "ok.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "later.txt"))
	assert.True(t, os.IsNotExist(err))
}

type brokenSink struct{ calls int }

func (s *brokenSink) Write(filename string, r io.Reader) (domain.StoredFile, error) {
	s.calls++
	return domain.StoredFile{}, fmt.Errorf("%w: disk full", domain.ErrIO)
}

func TestIngest_SinkFailureStops(t *testing.T) {
	sink := &brokenSink{}
	in := New(sink, testLogger())
	mr := buildBody(t, []testPart{
		{field: "file", filename: "a.txt", content: "a"},
		{field: "file", filename: "b.txt", content: "b"},
	})

	batch, err := in.Ingest(context.Background(), mr)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrIO))
	assert.Nil(t, batch)
	assert.Equal(t, 1, sink.calls)
}

func TestIngest_NoPartsIsEmptyBatch(t *testing.T) {
	bodies := map[string]string{
		"zero bytes":    "",
		"preamble only": "garbage without boundary",
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			in, root := newIngestor(t)
			mr := multipart.NewReader(bytes.NewBufferString(body), "xyz")

			batch, err := in.Ingest(context.Background(), mr)
			require.NoError(t, err)
			assert.NotNil(t, batch)
			assert.Empty(t, batch)

			entries, err := os.ReadDir(root)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestIngest_TruncatedAfterFirstPart(t *testing.T) {
	in, _ := newIngestor(t)
	body := "--xyz\r\n" +
		"Content-Disposition: form-data; name=\"a\"; filename=\"a.txt\"\r\n\r\n" +
		"no closing boundary"
	mr := multipart.NewReader(bytes.NewBufferString(body), "xyz")

	batch, err := in.Ingest(context.Background(), mr)
	require.Error(t, err)
	assert.Nil(t, batch)
}

func TestIngest_CancelledContext(t *testing.T) {
	in, _ := newIngestor(t)
	mr := buildBody(t, []testPart{{field: "file", filename: "a.txt", content: "a"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := in.Ingest(ctx, mr)
	assert.ErrorIs(t, err, context.Canceled)
}
