// Package zapcap adds burned-in captions to a video through the ZapCap
// asynchronous API. It implements ports.JobAPI directly.
package zapcap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/forPelevin/storyreel/internal/ports/adapters/apierr"
	"github.com/forPelevin/storyreel/internal/types"
)

const (
	DefaultBaseURL    = "https://api.zapcap.ai"
	DefaultTemplateID = "6255949c-4a52-4255-8a67-39ebccfaa3ef"
	service           = "zapcap"
)

type Client struct {
	key        string
	templateID string
	baseURL    string
	http       *http.Client
	retry      func() backoff.BackOff
}

func New(apiKey, templateID, baseURL string) *Client {
	if templateID == "" {
		templateID = DefaultTemplateID
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		key:        apiKey,
		templateID: templateID,
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: 10 * time.Minute},
		retry: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 2 * time.Second
			return backoff.WithMaxRetries(bo, 2)
		},
	}
}

// Submit uploads the video and starts a captioning task. The remote id is
// "<videoId>/<taskId>".
func (c *Client) Submit(ctx context.Context, payload types.Unit) (string, error) {
	if payload.Kind != types.KindVideo || payload.Path == "" {
		return "", fmt.Errorf("zapcap: expected a video file, got %s", payload.Kind)
	}
	videoID, err := c.upload(ctx, payload.Path)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"templateId":  c.templateID,
		"autoApprove": true,
		"language":    "en",
	})
	if err != nil {
		return "", err
	}
	var task struct {
		TaskID string `json:"taskId"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/videos/"+url.PathEscape(videoID)+"/task", bytes.NewReader(body), "application/json", &task); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	if task.TaskID == "" {
		return "", errors.New("create task: response has no taskId")
	}
	return videoID + "/" + task.TaskID, nil
}

func (c *Client) upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	var video struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/videos", pr, mw.FormDataContentType(), &video); err != nil {
		return "", err
	}
	if video.ID == "" {
		return "", errors.New("response has no id")
	}
	return video.ID, nil
}

func (c *Client) Poll(ctx context.Context, remoteID string) (types.JobStatus, error) {
	videoID, taskID, ok := strings.Cut(remoteID, "/")
	if !ok || videoID == "" || taskID == "" {
		return types.JobStatus{}, fmt.Errorf("zapcap: malformed remote id %q", remoteID)
	}
	var task struct {
		Status      string `json:"status"`
		DownloadURL string `json:"downloadUrl"`
		Error       string `json:"error"`
	}
	path := "/videos/" + url.PathEscape(videoID) + "/task/" + url.PathEscape(taskID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, "", &task); err != nil {
		return types.JobStatus{}, err
	}

	switch task.Status {
	case "completed":
		if task.DownloadURL == "" {
			return types.JobStatus{State: types.RemoteFailed, Reason: "completed without downloadUrl"}, nil
		}
		return types.JobStatus{State: types.RemoteCompleted, Output: task.DownloadURL}, nil
	case "failed":
		reason := task.Error
		if reason == "" {
			reason = "unknown error"
		}
		return types.JobStatus{State: types.RemoteFailed, Reason: reason}, nil
	default:
		return types.JobStatus{State: types.RemotePending}, nil
	}
}

// Download fetches the captioned video into dst, retrying transient failures.
func (c *Client) Download(ctx context.Context, ref, dst string) (types.Unit, error) {
	if dst == "" {
		return types.Unit{}, errors.New("zapcap: download needs a destination")
	}
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return apierr.FromResponse(service, resp, c.key)
		}
		return writeFile(dst, resp.Body)
	}
	if err := backoff.Retry(op, backoff.WithContext(c.retry(), ctx)); err != nil {
		return types.Unit{}, err
	}
	return types.Media(types.KindVideo, dst, 0), nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("x-api-key", c.key)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apierr.FromResponse(service, resp, c.key)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("zapcap: decode %s: %w", path, err)
	}
	return nil
}

func writeFile(dst string, r io.Reader) error {
	tmp := dst + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return backoff.Permanent(err)
	}
	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return backoff.Permanent(err)
	}
	return nil
}
