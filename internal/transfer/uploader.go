// Package transfer moves sensor files off the device over HTTP. A small
// queue decouples real-time upload requests from the producers; bulk passes
// enumerate the data directory directly.
package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spaia-earth/fieldcam/internal/fsutil"
	"github.com/spaia-earth/fieldcam/internal/monitoring"
	"github.com/spaia-earth/fieldcam/internal/storage"
)

// ErrQueueFull is returned by Enqueue when the transfer queue is saturated.
// The file stays on the medium and is picked up by the next bulk pass.
var ErrQueueFull = errors.New("transfer queue full")

const queueCapacity = 32

type job struct {
	path string
	url  string
}

// Uploader implements the bulk file transfer: a worker goroutine drains the
// real-time queue, and UploadAllPending transmits everything on the medium.
type Uploader struct {
	client *http.Client
	fs     fsutil.FileSystem
	store  *storage.FileStore
	url    string
	queue  chan job
}

// NewUploader creates an Uploader posting to url. A nil client selects a
// default with a 30 second timeout.
func NewUploader(fs fsutil.FileSystem, store *storage.FileStore, url string, client *http.Client) *Uploader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Uploader{
		client: client,
		fs:     fs,
		store:  store,
		url:    url,
		queue:  make(chan job, queueCapacity),
	}
}

// Enqueue hands one file to the worker without blocking.
func (u *Uploader) Enqueue(path, url string) error {
	if url == "" {
		url = u.url
	}
	select {
	case u.queue <- job{path: path, url: url}:
		return nil
	default:
		monitoring.Logf("transfer queue full, dropping %s until next bulk pass", path)
		return ErrQueueFull
	}
}

// Run drains the real-time queue until the context is cancelled. Failed
// uploads are logged and dropped; the file remains on the medium for the
// next bulk pass.
func (u *Uploader) Run(ctx context.Context) {
	monitoring.Logf("transfer worker started")
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("transfer worker stopping")
			return
		case j := <-u.queue:
			if err := u.uploadFile(j.path, j.url); err != nil {
				monitoring.Logf("real-time upload of %s failed: %v", j.path, err)
			}
		}
	}
}

// UploadAllPending transmits every CSV log and captured image currently on
// the medium. Successfully uploaded files are removed, except the CSV still
// being appended to today, so a pass is never blocked by its own producer.
func (u *Uploader) UploadAllPending() error {
	csvs, err := u.store.PendingCSVFiles()
	if err != nil {
		return fmt.Errorf("enumerating pending logs: %w", err)
	}
	images, err := u.store.PendingImageFiles()
	if err != nil {
		return fmt.Errorf("enumerating pending images: %w", err)
	}

	paths := append(csvs, images...)
	if len(paths) == 0 {
		monitoring.Logf("no files pending upload")
		return nil
	}
	monitoring.Logf("uploading %d pending files", len(paths))

	today := time.Now().Format("02-01-06") + ".csv"
	failures := 0
	var lastErr error
	for _, path := range paths {
		if err := u.uploadFile(path, u.url); err != nil {
			monitoring.Logf("upload of %s failed: %v", path, err)
			failures++
			lastErr = err
			continue
		}
		if filepath.Base(path) == today {
			continue
		}
		if err := u.store.Remove(path); err != nil {
			monitoring.Logf("removing uploaded file %s: %v", path, err)
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d uploads failed: %w", failures, len(paths), lastErr)
	}
	return nil
}

// uploadFile posts one file as a multipart form.
func (u *Uploader) uploadFile(path, url string) error {
	data, err := u.fs.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("building multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("building multipart body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("building multipart body: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("posting %s: server returned %s", path, resp.Status)
	}
	monitoring.Logf("uploaded %s (%d bytes)", path, len(data))
	return nil
}
