// Package apptest provides in-memory collaborators for testing the
// application pipelines without a container runtime.
package apptest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/pkg/compress"
)

// Controller is an in-memory repository.Controller. Calls records every
// mutating call as "stop:a,b", "start:a", "recreate:a" or "<op>-skipped".
type Controller struct {
	mu          sync.Mutex
	ModeValue   model.ControlMode
	running     map[string]bool
	StopFail    map[string]error
	StartFail   map[string]error
	RecreateErr error
	Calls       []string
}

var _ repository.Controller = (*Controller)(nil)

// NewController returns a controller where the named containers are running.
func NewController(running ...string) *Controller {
	c := &Controller{
		ModeValue: model.ControlModeDirect,
		running:   make(map[string]bool),
		StopFail:  make(map[string]error),
		StartFail: make(map[string]error),
	}
	for _, name := range running {
		c.running[name] = true
	}
	return c
}

func (c *Controller) Mode() model.ControlMode { return c.ModeValue }

// IsRunning reports the state of a container.
func (c *Controller) IsRunning(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running[name]
}

// SetRunning changes the state of a container.
func (c *Controller) SetRunning(name string, running bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running[name] = running
}

// CallLog returns a copy of the recorded calls.
func (c *Controller) CallLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Calls...)
}

// Count returns how many calls start with prefix.
func (c *Controller) Count(prefix string) int {
	n := 0
	for _, call := range c.CallLog() {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

func (c *Controller) Stop(_ context.Context, target model.Target, guard model.Guard) (model.StopResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := model.StopResult{Mode: c.ModeValue, Guard: guard, Failed: make(map[string]error)}
	if !guard.Allow {
		c.Calls = append(c.Calls, "stop-skipped")
		return res, nil
	}
	c.Calls = append(c.Calls, "stop:"+strings.Join(target.Names(), ","))
	for _, ref := range target.Members() {
		switch {
		case c.StopFail[ref.Name] != nil:
			res.Failed[ref.Name] = c.StopFail[ref.Name]
		case c.running[ref.Name]:
			c.running[ref.Name] = false
			res.Stopped = append(res.Stopped, ref)
		default:
			res.AlreadyStopped = append(res.AlreadyStopped, ref)
		}
	}
	return res, nil
}

func (c *Controller) Start(_ context.Context, target model.Target, guard model.Guard) (model.StartResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := model.StartResult{Mode: c.ModeValue, Failed: make(map[string]error)}
	if !guard.Allow {
		c.Calls = append(c.Calls, "start-skipped")
		res.Skipped = true
		return res, nil
	}
	c.Calls = append(c.Calls, "start:"+strings.Join(target.Names(), ","))
	for _, ref := range target.Members() {
		if err := c.StartFail[ref.Name]; err != nil {
			res.Failed[ref.Name] = err
			continue
		}
		c.running[ref.Name] = true
		res.Started = append(res.Started, ref)
	}
	return res, nil
}

func (c *Controller) Recreate(_ context.Context, target model.Target) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, "recreate:"+strings.Join(target.Names(), ","))
	if c.RecreateErr != nil {
		return c.RecreateErr
	}
	return nil
}

func (c *Controller) Running(_ context.Context, target model.Target) ([]model.ContainerRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.ContainerRef
	for _, ref := range target.Members() {
		if c.running[ref.Name] {
			out = append(out, ref)
		}
	}
	return out, nil
}

// Images is an in-memory repository.ImageRepository.
type Images struct {
	mu sync.Mutex

	// Cache holds the image IDs present locally.
	Cache map[string]bool

	// Current is what Describe returns per container.
	Current map[string]model.ImageSnapshot

	// PullErrors fail the next pulls, one entry per attempt.
	PullErrors []error

	// Pulled maps a reference to the image ID a successful pull resolves to.
	Pulled map[string]string

	Calls []string
}

var _ repository.ImageRepository = (*Images)(nil)

// NewImages returns an empty image cache.
func NewImages() *Images {
	return &Images{
		Cache:   make(map[string]bool),
		Current: make(map[string]model.ImageSnapshot),
		Pulled:  make(map[string]string),
	}
}

// CallLog returns a copy of the recorded calls.
func (i *Images) CallLog() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.Calls...)
}

func (i *Images) Describe(_ context.Context, ref model.ContainerRef) (model.ImageSnapshot, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	snap, ok := i.Current[ref.Name]
	if !ok {
		return model.ImageSnapshot{}, fmt.Errorf("container %s not found", ref.Name)
	}
	snap.Container = ref.Name
	if snap.Service == "" {
		snap.Service = ref.Service
	}
	return snap, nil
}

func (i *Images) Present(_ context.Context, imageID string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Calls = append(i.Calls, "present:"+imageID)
	return i.Cache[imageID], nil
}

func (i *Images) Tag(_ context.Context, imageID, reference string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Calls = append(i.Calls, "tag:"+imageID+"->"+reference)
	if !i.Cache[imageID] {
		return fmt.Errorf("image %s not found", imageID)
	}
	return nil
}

func (i *Images) Pull(_ context.Context, reference string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Calls = append(i.Calls, "pull:"+reference)
	if len(i.PullErrors) > 0 {
		err := i.PullErrors[0]
		i.PullErrors = i.PullErrors[1:]
		if err != nil {
			return err
		}
	}
	if id, ok := i.Pulled[reference]; ok {
		i.Cache[id] = true
	}
	return nil
}

// Engine is an in-memory repository.EngineAdapter. Datasets holds the
// content of every database by name.
type Engine struct {
	mu         sync.Mutex
	KindValue  model.EngineKind
	Datasets   map[string]string
	DumpFail   map[string]bool
	DumpPanic  map[string]bool
	NotReady   bool
	CountValue int
	Calls      []string
}

var _ repository.EngineAdapter = (*Engine)(nil)

// NewEngine returns an engine holding the named datasets.
func NewEngine(kind model.EngineKind, datasets ...string) *Engine {
	e := &Engine{
		KindValue:  kind,
		Datasets:   make(map[string]string),
		DumpFail:   make(map[string]bool),
		DumpPanic:  make(map[string]bool),
		CountValue: 3,
	}
	for _, name := range datasets {
		e.Datasets[name] = "data of " + name
	}
	return e
}

// CallLog returns a copy of the recorded calls.
func (e *Engine) CallLog() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.Calls...)
}

// Dataset returns the content of a dataset.
func (e *Engine) Dataset(name string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Datasets[name]
}

func (e *Engine) Kind() model.EngineKind { return e.KindValue }
func (e *Engine) Extension() string      { return "sql" }

func (e *Engine) Dump(_ context.Context, h model.DatabaseHandle, destPath string) model.DumpResult {
	e.mu.Lock()
	e.Calls = append(e.Calls, "dump:"+h.Database)
	panics := e.DumpPanic[h.Database]
	fails := e.DumpFail[h.Database]
	content, ok := e.Datasets[h.Database]
	e.mu.Unlock()

	if panics {
		panic("dump of " + h.Database + " exploded")
	}
	if fails || !ok {
		return model.DumpResult{ExitCode: 2, Stderr: "dump of " + h.Database + " failed"}
	}
	size, err := WriteDump(destPath, content)
	if err != nil {
		return model.DumpFailure(err)
	}
	return model.DumpResult{BytesWritten: size}
}

func (e *Engine) Restore(_ context.Context, h model.DatabaseHandle, sourcePath, targetName string) model.RestoreResult {
	data, err := readCompressed(sourcePath)
	if err != nil {
		return model.RestoreFailure(targetName, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, "restore:"+h.Database+"->"+targetName)
	e.Datasets[targetName] = string(data)
	return model.RestoreResult{Target: targetName}
}

func (e *Engine) Count(_ context.Context, h model.DatabaseHandle) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, "count:"+h.Database)
	if _, ok := e.Datasets[h.Database]; !ok {
		return 0, nil
	}
	return e.CountValue, nil
}

func (e *Engine) DropTemporary(_ context.Context, h model.DatabaseHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, "drop:"+h.Database)
	delete(e.Datasets, h.Database)
	return nil
}

func (e *Engine) WaitReady(_ context.Context, h model.DatabaseHandle, _ time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, "ready:"+h.Container)
	return !e.NotReady
}

// WriteDump writes content zstd-compressed to path, the way the fake engine
// dumps a dataset.
func WriteDump(path, content string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	codec, err := compress.ByName(compress.Zstd)
	if err != nil {
		return 0, err
	}
	zw, err := codec.NewWriter(f)
	if err != nil {
		return 0, err
	}
	if _, err := io.WriteString(zw, content); err != nil {
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func readCompressed(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	codec, ok := compress.ForPath(path)
	if !ok {
		return io.ReadAll(f)
	}
	zr, err := codec.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// Engines maps engine kinds to fakes.
type Engines map[model.EngineKind]*Engine

func (e Engines) Adapter(kind model.EngineKind) (repository.EngineAdapter, error) {
	if a, ok := e[kind]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %s", model.ErrUnsupportedEngine, kind)
}

// Runtime bundles fakes as a repository.Runtime.
type Runtime struct {
	Ctrl    *Controller
	Img     *Images
	Engs    Engines
	Closed  bool
	CtrlErr error
}

var _ repository.Runtime = (*Runtime)(nil)

func (r *Runtime) Controller(model.Unit) (repository.Controller, error) {
	if r.CtrlErr != nil {
		return nil, r.CtrlErr
	}
	return r.Ctrl, nil
}

func (r *Runtime) Images() repository.ImageRepository { return r.Img }
func (r *Runtime) Engines() repository.EngineRegistry { return r.Engs }
func (r *Runtime) Close() error                       { r.Closed = true; return nil }

// Connector returns the runtime registered for each host name.
type Connector map[string]*Runtime

func (c Connector) Connect(_ context.Context, host model.Host) (repository.Runtime, error) {
	if rt, ok := c[host.Name]; ok {
		return rt, nil
	}
	return nil, fmt.Errorf("cannot connect to %s", host.Name)
}

// Inventory resolves scopes against a fixed host list.
type Inventory struct {
	Hosts []model.Host
}

func (inv Inventory) Resolve(_ context.Context, scope model.Scope) ([]model.Host, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	var out []model.Host
	for _, h := range inv.Hosts {
		if scope.Host != "" && h.Name != scope.Host {
			continue
		}
		if scope.Group != "" && !slices.Contains(h.Groups, scope.Group) {
			continue
		}
		if scope.Unit != "" {
			u, ok := h.Unit(scope.Unit)
			if !ok {
				continue
			}
			h.Units = []model.Unit{u}
		}
		out = append(out, h)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", model.ErrUnitNotFound, scope)
	}
	return out, nil
}

// Credentials returns empty credentials for every name.
type Credentials struct{}

func (Credentials) Credentials(context.Context, string) (model.Credentials, error) {
	return model.Credentials{User: "backup"}, nil
}

// Recorder keeps recorded rows per table.
type Recorder struct {
	mu   sync.Mutex
	Rows map[string][]map[string]any
	Err  error
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{Rows: make(map[string][]map[string]any)}
}

func (r *Recorder) Record(_ context.Context, table string, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Rows[table] = append(r.Rows[table], fields)
	return nil
}

// Table returns the rows of a table.
func (r *Recorder) Table(table string) []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]any(nil), r.Rows[table]...)
}

// Notification is one Notify call.
type Notification struct {
	Title  string
	Status model.Status
	Fields map[string]string
}

// Notifier keeps every notification.
type Notifier struct {
	mu    sync.Mutex
	Notes []Notification
}

func (n *Notifier) Notify(_ context.Context, title string, status model.Status, fields map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Notes = append(n.Notes, Notification{Title: title, Status: status, Fields: fields})
}

// Sent returns the notifications sent so far.
func (n *Notifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.Notes...)
}

// ErrInjected is the error returned by injected failures.
var ErrInjected = errors.New("injected failure")
