// Package botclient talks to the Telegram Bot API through the proxy.
// Every call goes to <proxy>/proxy/bot<token>/<method> and the Bot API
// envelope comes back decoded.
package botclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoMedia is returned when a media call has neither a file path nor a URL.
var ErrNoMedia = errors.New("botclient: either a file path or a URL is required")

// MediaKind names a Bot API send method together with its payload field.
type MediaKind struct {
	Method string
	Field  string
}

// Supported media kinds.
var (
	Document = MediaKind{Method: "sendDocument", Field: "document"}
	Photo    = MediaKind{Method: "sendPhoto", Field: "photo"}
	Audio    = MediaKind{Method: "sendAudio", Field: "audio"}
	Video    = MediaKind{Method: "sendVideo", Field: "video"}
)

// Media is the payload of a media call. URL wins when both are set, since
// Telegram then fetches the file itself.
type Media struct {
	Path string
	URL  string
}

// Response is the Bot API reply envelope.
type Response struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
}

// APIError is returned alongside the Response when the Bot API answers ok=false.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %d %s", e.Code, e.Description)
}

// Client sends messages and files to one chat through the proxy.
type Client struct {
	proxyURL   string
	token      string
	chatID     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client. A trailing slash on proxyURL is ignored; a nil
// httpClient means http.DefaultClient.
func New(proxyURL, token, chatID string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		proxyURL:   strings.TrimRight(proxyURL, "/"),
		token:      token,
		chatID:     chatID,
		httpClient: httpClient,
		logger:     logger.With("component", "bot_client"),
	}
}

// MethodURL returns the proxy URL for a Bot API method.
func (c *Client) MethodURL(method string) string {
	return c.proxyURL + "/proxy/bot" + c.token + "/" + method
}

// SendMessage sends a text message to the chat.
func (c *Client) SendMessage(ctx context.Context, text string) (*Response, error) {
	form := url.Values{"chat_id": {c.chatID}, "text": {text}}
	return c.postForm(ctx, "sendMessage", form)
}

// SendDocument sends a document by URL or local path.
func (c *Client) SendDocument(ctx context.Context, m Media) (*Response, error) {
	return c.SendMedia(ctx, Document, m)
}

// SendPhoto sends a photo by URL or local path.
func (c *Client) SendPhoto(ctx context.Context, m Media) (*Response, error) {
	return c.SendMedia(ctx, Photo, m)
}

// SendAudio sends an audio file by URL or local path.
func (c *Client) SendAudio(ctx context.Context, m Media) (*Response, error) {
	return c.SendMedia(ctx, Audio, m)
}

// SendVideo sends a video by URL or local path.
func (c *Client) SendVideo(ctx context.Context, m Media) (*Response, error) {
	return c.SendMedia(ctx, Video, m)
}

// SendMedia sends m using the method of kind. A URL is passed as a form
// field; a local file is streamed as a multipart upload.
func (c *Client) SendMedia(ctx context.Context, kind MediaKind, m Media) (*Response, error) {
	switch {
	case m.URL != "":
		form := url.Values{"chat_id": {c.chatID}, kind.Field: {m.URL}}
		return c.postForm(ctx, kind.Method, form)
	case m.Path != "":
		return c.postFile(ctx, kind, m.Path)
	default:
		return nil, ErrNoMedia
	}
}

func (c *Client) postForm(ctx context.Context, method string, form url.Values) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.MethodURL(method), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("botclient: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, method)
}

func (c *Client) postFile(ctx context.Context, kind MediaKind, path string) (*Response, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("botclient: open %s: %w", path, err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer func() { _ = f.Close() }()
		err := writeMultipart(mw, c.chatID, kind.Field, filepath.Base(path), f)
		_ = pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.MethodURL(kind.Method), pr)
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("botclient: build %s request: %w", kind.Method, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, kind.Method)
}

func writeMultipart(mw *multipart.Writer, chatID, field, filename string, r io.Reader) error {
	if err := mw.WriteField("chat_id", chatID); err != nil {
		return err
	}
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}
	return mw.Close()
}

// do sends req and decodes the envelope whatever the status code, since the
// Bot API reports failures in the body.
func (c *Client) do(req *http.Request, method string) (*Response, error) {
	c.logger.Debug("bot api call", "method", method)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err // the URL carries the token
		}
		return nil, fmt.Errorf("botclient: %s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("botclient: %s: decode response (status %d): %w", method, resp.StatusCode, err)
	}
	if !out.OK {
		return &out, &APIError{Code: out.ErrorCode, Description: out.Description}
	}
	return &out, nil
}
