package chromelens

import (
	"context"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
)

// FileChooserRequest is delivered to a Context's file chooser handler
// whenever the page opens a native file picker (an <input type="file">
// click, or one triggered by script via showPicker()/click()).
type FileChooserRequest struct {
	ctx      context.Context
	backend  dom.BackendNodeID
	multiple bool
}

// Multiple reports whether the triggering <input> accepts more than one
// file.
func (f *FileChooserRequest) Multiple() bool {
	return f.multiple
}

// SetFiles answers the chooser with the given local file paths, attached to
// the <input> element via DOM.setFileInputFiles.
func (f *FileChooserRequest) SetFiles(paths ...string) error {
	p := dom.SetFileInputFiles(paths)
	if f.backend != 0 {
		p = p.WithBackendNodeID(f.backend)
	}
	return p.Do(f.ctx)
}

// OnFileChooser registers fn as ctx's file chooser handler, which must call
// SetFiles on the delivered request (or simply return to leave it pending,
// which the page sees as the user dismissing the dialog).
func OnFileChooser(ctx context.Context, fn func(*FileChooserRequest) error) error {
	c := FromContext(ctx)
	if c == nil {
		return ErrInvalidContext
	}
	c.fileChooserHandler = fn

	t, err := targetFromContext(ctx)
	if err != nil {
		return err
	}
	if err := page.SetInterceptFileChooserDialog(true).Do(ctx); err != nil {
		return err
	}

	sub := t.Subscribe(ctx, 16)
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d := <-sub.C():
				ev, ok := d.Event.(*page.EventFileChooserOpened)
				if !ok {
					continue
				}
				req := &FileChooserRequest{
					ctx:      ctx,
					backend:  ev.BackendNodeID,
					multiple: ev.Mode == page.FileChooserOpenedModeSelectMultiple,
				}
				if handler := c.fileChooserHandler; handler != nil {
					_ = handler(req)
				}
			}
		}
	}()
	return nil
}
