package payload

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegramd/internal/domain"
)

func queryContext(q url.Values) echo.Context {
	req := httptest.NewRequest(http.MethodGet, "/?"+q.Encode(), nil)
	return echo.New().NewContext(req, httptest.NewRecorder())
}

func jsonContext(body string) echo.Context {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return echo.New().NewContext(req, httptest.NewRecorder())
}

func TestBind_QueryAndJSONAgree(t *testing.T) {
	cases := []struct {
		name   string
		chatID string
		msg    string
	}{
		{"numeric", "42", "hi"},
		{"negative group id", "-1001234567890", "<b>bold</b> & more"},
		{"channel username", "@mychannel", "unicode ✓ text\nwith newline"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fromQuery, err := BindQuery(queryContext(url.Values{"chatid": {tc.chatID}, "message": {tc.msg}}))
			require.NoError(t, err)

			body := `{"chatid":` + quote(tc.chatID) + `,"message":` + quote(tc.msg) + `}`
			fromJSON, err := BindJSON(jsonContext(body))
			require.NoError(t, err)

			assert.Equal(t, fromQuery, fromJSON)
			assert.Equal(t, tc.chatID, fromJSON.ChatID)
			require.NotNil(t, fromJSON.Message)
			assert.Equal(t, tc.msg, *fromJSON.Message)
		})
	}
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}

func TestBindJSON_NumericChatID(t *testing.T) {
	req, err := BindJSON(jsonContext(`{"chatid": -100123, "message": "hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "-100123", req.ChatID)
}

func TestBindJSON_Malformed(t *testing.T) {
	bodies := map[string]string{
		"not json":        `chatid=42`,
		"truncated":       `{"chatid":`,
		"missing chatid":  `{"message":"hi"}`,
		"missing message": `{"chatid":"42"}`,
		"empty chatid":    `{"chatid":"  ","message":"hi"}`,
		"null chatid":     `{"chatid":null,"message":"hi"}`,
		"float chatid":    `{"chatid":4.2,"message":"hi"}`,
		"object chatid":   `{"chatid":{},"message":"hi"}`,
		"wrong type":      `{"chatid":"42","message":7}`,
		"empty body":      ``,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			_, err := BindJSON(jsonContext(body))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrMalformed)
		})
	}
}

func TestBindJSON_RequiresJSONContentType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"chatid":"42","message":"hi"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMETextPlain)
	c := echo.New().NewContext(req, httptest.NewRecorder())

	_, err := BindJSON(c)
	assert.ErrorIs(t, err, domain.ErrMalformed)
}

func TestBindQuery_MissingFields(t *testing.T) {
	_, err := BindQuery(queryContext(url.Values{"message": {"hi"}}))
	require.ErrorIs(t, err, domain.ErrMalformed)
	assert.Contains(t, err.Error(), "chatid")

	_, err = BindQuery(queryContext(url.Values{"chatid": {"42"}}))
	require.ErrorIs(t, err, domain.ErrMalformed)
	assert.Contains(t, err.Error(), "message")
}

func TestBindUpload(t *testing.T) {
	req, err := BindUpload(queryContext(url.Values{"chatid": {" 42 "}}))
	require.NoError(t, err)
	assert.Equal(t, "42", req.ChatID)
	assert.Nil(t, req.Message)

	req, err = BindUpload(queryContext(url.Values{"chatid": {"42"}, "message": {""}}))
	require.NoError(t, err)
	assert.Nil(t, req.Message)

	req, err = BindUpload(queryContext(url.Values{"chatid": {"42"}, "message": {"see attached"}}))
	require.NoError(t, err)
	require.NotNil(t, req.Message)
	assert.Equal(t, "see attached", *req.Message)

	_, err = BindUpload(queryContext(url.Values{"message": {"orphan"}}))
	assert.ErrorIs(t, err, domain.ErrMalformed)
}
