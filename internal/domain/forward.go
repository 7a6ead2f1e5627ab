package domain

import (
	"errors"
	"strings"
)

// ForwardRequest is the normalized shape of every forwarding request, whichever
// wire representation it arrived in.
type ForwardRequest struct {
	ChatID  string
	Message *string // nil when the request carries no text
}

// StoredFile is an uploaded file that has been written under the upload root.
type StoredFile struct {
	Name string // declared filename from the multipart part
	Path string // location on disk
	Size int64
}

// UploadBatch preserves multipart part arrival order. An empty batch is valid.
type UploadBatch []StoredFile

// FileError records a failed document send for one file of a batch.
type FileError struct {
	File StoredFile
	Err  error
}

func (e *FileError) Error() string { return e.File.Name + ": " + e.Err.Error() }
func (e *FileError) Unwrap() error { return e.Err }

// ForwardOutcome aggregates the result of forwarding one request.
// A text failure short-circuits the batch, so TextErr and FileErrs are never both set.
type ForwardOutcome struct {
	BatchID  string
	TextErr  error
	FileErrs []*FileError
	Sent     int // documents delivered
}

// OK reports whether the text (if any) and every file were delivered.
func (o ForwardOutcome) OK() bool {
	return o.TextErr == nil && len(o.FileErrs) == 0
}

// Err returns nil on full success, the text error if the text send failed,
// and otherwise the per-file errors joined in batch order.
func (o ForwardOutcome) Err() error {
	if o.TextErr != nil {
		return o.TextErr
	}
	if len(o.FileErrs) == 0 {
		return nil
	}
	errs := make([]error, len(o.FileErrs))
	for i, fe := range o.FileErrs {
		errs[i] = fe
	}
	return errors.Join(errs...)
}

// Summary renders the outcome as the human readable text returned to HTTP clients.
func (o ForwardOutcome) Summary() string {
	if o.TextErr != nil {
		return o.TextErr.Error()
	}
	if len(o.FileErrs) == 0 {
		return ""
	}
	msgs := make([]string, len(o.FileErrs))
	for i, fe := range o.FileErrs {
		msgs[i] = fe.Error()
	}
	return "Got the following errors: " + strings.Join(msgs, ", ")
}
