// Package assistant is the HTTP client for the external answering and
// document-indexing service. The service is consumed through exactly three
// request contracts: chat query, document upload, and document query.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	errx "github.com/askaudacity/chatcore/internal/core/error"
	logx "github.com/askaudacity/chatcore/pkg/logger"
)

// Config describes the answering service endpoint, sourced from environment
// variables (ASSISTANT_BASE_URL, ASSISTANT_TIMEOUT).
type Config struct {
	BaseURL string `split_words:"true" required:"true"`
	Timeout int    `split_words:"true" default:"30"`
}

// New builds a client from the config.
func (c *Config) New() *Client {
	return NewClient(c.BaseURL, time.Duration(c.Timeout)*time.Second)
}

// Client talks to the answering service. Every call is bounded by both the
// caller's context and the client-level timeout; a hung request can never
// block submissions indefinitely.
type Client struct {
	base string
	http *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Message string `json:"message"`
}

type replyResponse struct {
	Text string `json:"text"`
}

type uploadResponse struct {
	PDFPath string `json:"pdf_path"`
}

type documentQueryRequest struct {
	PDFPath string `json:"pdf_path"`
	Message string `json:"message"`
}

// Chat sends a free-form message and returns the reply text. The text field is
// optional in the contract; an absent field comes back as the empty string and
// the caller decides the fallback.
func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	var reply replyResponse
	if err := c.postJSON(ctx, "/chat", chatRequest{Message: message}, &reply); err != nil {
		return "", err
	}
	return reply.Text, nil
}

// UploadDocument sends the raw file under the multipart field "file" and
// returns the server-side path reference. A 2xx response without pdf_path is a
// contract violation: the caller must not proceed to the query phase.
func (c *Client) UploadDocument(ctx context.Context, name string, file io.Reader) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("create multipart field: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("copy document body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/upload-pdf", &body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var upload uploadResponse
	if err := c.do(req, &upload); err != nil {
		return "", err
	}
	if upload.PDFPath == "" {
		logx.Error().Str("document", name).Msg("upload succeeded but no pdf_path returned")
		return "", errx.Contract(errors.New("upload response missing pdf_path"))
	}
	return upload.PDFPath, nil
}

// QueryDocument asks a question scoped to a previously uploaded document.
func (c *Client) QueryDocument(ctx context.Context, serverPath, message string) (string, error) {
	var reply replyResponse
	req := documentQueryRequest{PDFPath: serverPath, Message: message}
	if err := c.postJSON(ctx, "/pdf-query", req, &reply); err != nil {
		return "", err
	}
	return reply.Text, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		logx.Error().Err(err).Str("url", req.URL.String()).Msg("assistant request failed")
		return errx.WrapTransport(err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		logx.Error().Int("status", res.StatusCode).Str("url", req.URL.String()).Msg("assistant returned non-2xx")
		return errx.WrapTransport(fmt.Errorf("%s: status %d: %s", req.URL.Path, res.StatusCode, bytes.TrimSpace(body)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
