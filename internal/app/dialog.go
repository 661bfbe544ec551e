package app

import (
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// dialog is an open JavaScript alert, confirmation or prompt
type dialog struct {
	typ     proto.PageDialogType
	message string
}

func (d *dialog) kind() string {
	switch d.typ {
	case proto.PageDialogTypeConfirm:
		return "confirmation"
	case proto.PageDialogTypePrompt:
		return "prompt"
	default:
		return "alert"
	}
}

// dialogWatcher follows the dialogs of one page through CDP events
type dialogWatcher struct {
	mu      sync.Mutex
	current *dialog
	opened  chan struct{}
	stop    func()
}

func watchDialogs(page *rod.Page) *dialogWatcher {
	p, cancel := page.WithCancel()
	w := &dialogWatcher{opened: make(chan struct{}, 1), stop: cancel}

	wait := p.EachEvent(func(e *proto.PageJavascriptDialogOpening) {
		w.mu.Lock()
		w.current = &dialog{typ: e.Type, message: e.Message}
		w.mu.Unlock()

		select {
		case w.opened <- struct{}{}:
		default:
		}
	}, func(e *proto.PageJavascriptDialogClosed) {
		w.mu.Lock()
		w.current = nil
		w.mu.Unlock()
	})
	go wait()

	return w
}

func (w *dialogWatcher) get() *dialog {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// closed marks the dialog handled without waiting for the closed event
func (w *dialogWatcher) closed() {
	w.mu.Lock()
	w.current = nil
	w.mu.Unlock()
	w.drain()
}

// drain discards an open notification left from an earlier interaction
func (w *dialogWatcher) drain() {
	select {
	case <-w.opened:
	default:
	}
}

// watcher returns the dialog watcher of the current tab, starting it on first use
func (a *App) watcher() *dialogWatcher {
	a.mu.Lock()
	defer a.mu.Unlock()

	page := a.tabLocked()
	if page == nil {
		return nil
	}
	id := string(page.TargetID)
	w, ok := a.dialogs[id]
	if !ok {
		w = watchDialogs(page)
		a.dialogs[id] = w
	}
	return w
}

func (a *App) openDialog() *dialog {
	w := a.watcher()
	if w == nil {
		return nil
	}
	return w.get()
}

// handleDialog accepts or dismisses the open dialog
func (a *App) handleDialog(accept bool) error {
	page := a.tab()
	if page == nil {
		return errNoBrowser
	}

	params := proto.PageHandleJavaScriptDialog{Accept: accept}
	a.mu.Lock()
	if a.prompt != nil && accept {
		params.PromptText = *a.prompt
	}
	a.prompt = nil
	a.mu.Unlock()

	if err := params.Call(page); err != nil {
		return err
	}
	if w := a.watcher(); w != nil {
		w.closed()
	}
	return nil
}
