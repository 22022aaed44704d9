package chromelens

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
)

// DownloadState is the lifecycle state of a Download.
type DownloadState int

// Download states.
const (
	DownloadInProgress DownloadState = iota
	DownloadCompleted
	DownloadCanceled
)

// Download tracks a single browser-initiated file download, driven by the
// Page.downloadWillBegin/Page.downloadProgress event pair. It carries no
// methods to act on the file itself: fetching bytes off disk is the
// caller's job. Path is not filled in from those events and stays empty.
type Download struct {
	mu sync.Mutex

	GUID               string
	URL                string
	SuggestedFilename  string
	StartedAt          time.Time
	State              DownloadState
	Path               string
}

func (d *Download) setState(state DownloadState) {
	d.mu.Lock()
	d.State = state
	d.mu.Unlock()
}

func (d *Download) setPath(path string) {
	d.mu.Lock()
	d.Path = path
	d.mu.Unlock()
}

// OnDownload stores fn as the handler dispatchDownloadEvent calls when a
// Page.downloadWillBegin event creates a Download. Nothing in this package
// feeds a target's events to dispatchDownloadEvent, so registering fn does
// not by itself cause it to be called.
func (c *Context) OnDownload(fn func(*Download)) {
	c.downloadHandler = fn
}

// AllowDownloads is an action that enables browser-initiated downloads to
// be saved to dir.
func AllowDownloads(dir string) Action {
	return ActionFunc(func(ctx context.Context) error {
		return page.SetDownloadBehavior(page.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(dir).
			Do(ctx)
	})
}

// dispatchDownloadEvent updates (or creates) the Download record tracked
// for guid and notifies the registered handler on the initial event. No
// code in this package subscribes it to a Target's event stream.
func (c *Context) dispatchDownloadEvent(downloads map[string]*Download, downloadsMu *sync.Mutex, ev interface{}) {
	switch e := ev.(type) {
	case *page.EventDownloadWillBegin:
		d := &Download{
			GUID:              e.GUID,
			URL:               e.URL,
			SuggestedFilename: e.SuggestedFilename,
			StartedAt:         time.Now(),
			State:             DownloadInProgress,
		}
		downloadsMu.Lock()
		downloads[e.GUID] = d
		downloadsMu.Unlock()
		if c.downloadHandler != nil {
			c.downloadHandler(d)
		}

	case *page.EventDownloadProgress:
		downloadsMu.Lock()
		d := downloads[e.GUID]
		downloadsMu.Unlock()
		if d == nil {
			return
		}
		switch e.State {
		case page.DownloadProgressStateCompleted:
			d.setState(DownloadCompleted)
		case page.DownloadProgressStateCanceled:
			d.setState(DownloadCanceled)
		}
	}
}
