// Package latex runs the compile panels embedded in rendered documents. Each
// panel sends its source to a compiler and keeps the resulting PDF as a blob
// until the next compile or until it is closed.
package latex

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/folio/internal/api"
	"github.com/debemdeboas/folio/internal/blob"
	"github.com/debemdeboas/folio/internal/config"
)

var latexLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	latexLogger = l
}

type Status string

const (
	StatusIdle      Status = "idle"
	StatusCompiling Status = "compiling"
	StatusDone      Status = "done"
	StatusError     Status = "error"
)

// DownloadName is the file name offered for a compiled document.
const DownloadName = "latex-document.pdf"

var (
	ErrCompileInFlight = errors.New(config.ErrCompileInFlight)
	ErrNotCompiled     = errors.New("no compiled document to download")
	ErrPanelClosed     = errors.New("latex panel closed")
	ErrEmptySource     = errors.New("LaTeX source is empty")
	ErrEmptyDocument   = errors.New("compiler returned an empty document")
)

// Compiler turns LaTeX source into a PDF.
type Compiler interface {
	Compile(ctx context.Context, source, lang string) ([]byte, error)
}

type CompilerFunc func(ctx context.Context, source, lang string) ([]byte, error)

func (f CompilerFunc) Compile(ctx context.Context, source, lang string) ([]byte, error) {
	return f(ctx, source, lang)
}

// APICompiler compiles through the backend with the caller's credentials.
type APICompiler struct {
	client  *api.Client
	timeout time.Duration
}

func NewAPICompiler(client *api.Client, timeout time.Duration) *APICompiler {
	return &APICompiler{client: client, timeout: timeout}
}

func (c *APICompiler) Compile(ctx context.Context, source, lang string) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.client.CompileLatex(ctx, source, lang)
}

type Snapshot struct {
	ID      string `json:"id"`
	Key     string `json:"key"`
	Source  string `json:"source"`
	Lang    string `json:"lang"`
	Status  Status `json:"status"`
	BlobURL string `json:"blob_url,omitempty"`
	Log     string `json:"log,omitempty"`

	// Where the document downloads from, set when done.
	DownloadURL string `json:"download_url,omitempty"`
}

func (s Snapshot) Compiling() bool {
	return s.Status == StatusCompiling
}

// Panel is the state machine of one compile panel:
// idle -> compiling -> done | error -> compiling -> ...
type Panel struct {
	ID    string
	Key   string
	Owner string

	compiler Compiler
	slot     *blob.Slot
	onChange func(Snapshot)

	mu      sync.Mutex
	status  Status
	source  string
	lang    string
	log     string
	cancel  context.CancelFunc
	closed  bool
	touched time.Time
}

// NewPanel returns an idle panel. onChange, if set, is called after every
// state transition and must not call back into the panel's mutators.
func NewPanel(id, key, owner string, c Compiler, blobs *blob.Store, onChange func(Snapshot)) *Panel {
	return &Panel{
		ID:       id,
		Key:      key,
		Owner:    owner,
		compiler: c,
		slot:     blobs.NewSlot(),
		onChange: onChange,
		status:   StatusIdle,
		touched:  time.Now(),
	}
}

func (p *Panel) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Panel) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:     p.ID,
		Key:    p.Key,
		Source: p.source,
		Lang:   p.lang,
		Status: p.status,
		Log:    p.log,
	}
	if p.status == StatusDone {
		s.BlobURL = p.slot.URL()
		s.DownloadURL = "/latex/panels/" + p.ID + "/download"
	}
	return s
}

// SetCompiler swaps the compiler used by the next compile.
func (p *Panel) SetCompiler(c Compiler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.compiler = c
}

// begin moves the panel to compiling. The previous document is released
// before the new request starts.
func (p *Panel) begin(ctx context.Context, source, lang string) (context.Context, Compiler, Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.closed:
		return nil, nil, p.snapshotLocked(), ErrPanelClosed
	case p.status == StatusCompiling:
		return nil, nil, p.snapshotLocked(), ErrCompileInFlight
	}
	if lang == "" {
		lang = config.AppConfig.Latex.DefaultLang
	}

	p.slot.Release()
	p.status = StatusCompiling
	p.source = source
	p.lang = lang
	p.log = ""
	p.touched = time.Now()

	cctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	return cctx, p.compiler, p.snapshotLocked(), nil
}

func (p *Panel) finish(pdf []byte, err error) Snapshot {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.closed {
		snap := p.snapshotLocked()
		p.mu.Unlock()
		return snap
	}

	if err == nil && len(pdf) == 0 {
		err = ErrEmptyDocument
	}
	if err != nil {
		p.status = StatusError
		p.log = failureLog(err)
	} else {
		p.slot.Replace(DownloadName, config.CTypePDF, pdf)
		p.status = StatusDone
	}
	p.touched = time.Now()
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.changed(snap)
	return snap
}

func (p *Panel) changed(s Snapshot) {
	if p.onChange != nil {
		p.onChange(s)
	}
}

// Compile runs one compilation and waits for it. While another compilation
// runs it does nothing and returns ErrCompileInFlight. A failed compilation is
// not an error: the returned snapshot is in the error state with the log.
func (p *Panel) Compile(ctx context.Context, source, lang string) (Snapshot, error) {
	cctx, c, snap, err := p.begin(ctx, source, lang)
	if err != nil {
		return snap, err
	}
	p.changed(snap)

	pdf, err := c.Compile(cctx, snap.Source, snap.Lang)
	return p.finish(pdf, err), nil
}

// Start begins a compilation and returns at once with the compiling state.
// The result arrives through onChange.
func (p *Panel) Start(ctx context.Context, source, lang string) (Snapshot, error) {
	cctx, c, snap, err := p.begin(ctx, source, lang)
	if err != nil {
		return snap, err
	}

	go func() {
		pdf, err := c.Compile(cctx, snap.Source, snap.Lang)
		done := p.finish(pdf, err)
		latexLogger.Debug().Str("panel", p.ID).Str("status", string(done.Status)).Msg("Compilation finished")
	}()
	return snap, nil
}

// Download returns the compiled document. It is only available when done.
func (p *Panel) Download() (*blob.Blob, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != StatusDone {
		return nil, ErrNotCompiled
	}
	b, ok := p.slot.Current()
	if !ok {
		return nil, ErrNotCompiled
	}
	return b, nil
}

// Close cancels a running compilation and releases the document.
func (p *Panel) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.slot.Release()
	p.status = StatusIdle
}

func (p *Panel) idleSince() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == StatusCompiling {
		return time.Now()
	}
	return p.touched
}

func failureLog(err error) string {
	var apiErr *api.Error
	switch {
	case errors.As(err, &apiErr) && apiErr.Log != "":
		return apiErr.Log
	case errors.Is(err, context.Canceled):
		return "Compilation cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "Compilation timed out"
	case errors.Is(err, ErrEmptyDocument):
		return err.Error()
	}
	return api.Message(err)
}
