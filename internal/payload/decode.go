// Package payload normalizes the wire shapes of a forwarding request.
//
// The text routes accept either URL query parameters or a JSON body; the
// upload route carries its parameters in the query string. Each shape is bound
// with echo's binder, checked with validator tags and converted to
// domain.ForwardRequest.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"telegramd/internal/domain"
)

// ChatID is a chat identifier that a JSON body may carry as a string
// ("@channel", "-100123") or as an integer (-100123).
type ChatID string

func (id *ChatID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ChatID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		if _, err := n.Int64(); err == nil {
			*id = ChatID(n.String())
			return nil
		}
	}
	return errors.New("chatid must be a string or integer")
}

// MessageParams is the text route shape; both fields are mandatory.
type MessageParams struct {
	ChatID  ChatID `query:"chatid" json:"chatid" form:"chatid" validate:"required"`
	Message string `query:"message" json:"message" form:"message" validate:"required"`
}

// UploadParams is the upload route shape; the message is optional.
type UploadParams struct {
	ChatID  ChatID `query:"chatid" validate:"required"`
	Message string `query:"message"`
}

var (
	binder   = &echo.DefaultBinder{}
	validate = validator.New(validator.WithRequiredStructEnabled())
)

// BindQuery decodes ?chatid=&message= for the text route.
func BindQuery(c echo.Context) (domain.ForwardRequest, error) {
	var p MessageParams
	if err := binder.BindQueryParams(c, &p); err != nil {
		return domain.ForwardRequest{}, malformed(err)
	}
	return p.normalize()
}

// BindJSON decodes a {"chatid": ..., "message": ...} body for the text route.
func BindJSON(c echo.Context) (domain.ForwardRequest, error) {
	var p MessageParams
	if err := binder.BindBody(c, &p); err != nil {
		return domain.ForwardRequest{}, malformed(err)
	}
	return p.normalize()
}

// BindUpload decodes ?chatid=&message= for the upload route. A message that
// is absent or empty leaves Message nil.
func BindUpload(c echo.Context) (domain.ForwardRequest, error) {
	var p UploadParams
	if err := binder.BindQueryParams(c, &p); err != nil {
		return domain.ForwardRequest{}, malformed(err)
	}
	p.ChatID = ChatID(strings.TrimSpace(string(p.ChatID)))
	if err := check(p); err != nil {
		return domain.ForwardRequest{}, err
	}
	req := domain.ForwardRequest{ChatID: string(p.ChatID)}
	if p.Message != "" {
		msg := p.Message
		req.Message = &msg
	}
	return req, nil
}

func (p MessageParams) normalize() (domain.ForwardRequest, error) {
	p.ChatID = ChatID(strings.TrimSpace(string(p.ChatID)))
	if err := check(p); err != nil {
		return domain.ForwardRequest{}, err
	}
	msg := p.Message
	return domain.ForwardRequest{ChatID: string(p.ChatID), Message: &msg}, nil
}

func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, strings.ToLower(fe.Field()))
		}
		return fmt.Errorf("%w: missing %s", domain.ErrMalformed, strings.Join(fields, ", "))
	}
	return malformed(err)
}

// malformed reports a binder failure by its message, without its HTTP status.
func malformed(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return fmt.Errorf("%w: %v", domain.ErrMalformed, he.Message)
	}
	return fmt.Errorf("%w: %w", domain.ErrMalformed, err)
}
