// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

package plugin

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mkschreder/jucid/internal/plugin/engine"
	"github.com/mkschreder/jucid/pkg/blob"
	"github.com/mkschreder/jucid/pkg/errutil"
)

// Registry error codes.
const (
	CodeObjectNotFound = "OBJECT_NOT_FOUND"
	CodeAccessDenied   = "ACCESS_DENIED"
)

// Access check parameters used for every registry call.
const (
	AccessScope = "ubus"
	AccessPerm  = "x"
)

// pluginExt is the extension of plugin module files.
const pluginExt = ".lua"

// maxNameLength is the maximum allowed length for object names.
const maxNameLength = 128

// namePattern validates object names: path-like segments of lowercase
// letters, digits, underscores, dots and hyphens separated by '/'.
var namePattern = regexp.MustCompile(`^[a-z0-9_]([a-z0-9_./-]*[a-z0-9_])?$`)

const tracerName = "github.com/mkschreder/jucid/internal/plugin"

// Registry discovers plugin files in a directory and owns one Object per
// file. It serializes nothing itself: each Object guards its interpreter.
type Registry struct {
	dir         string
	factory     engine.Factory
	enforce     bool
	loadRetries uint64
	retryDelay  time.Duration
	tracer      trace.Tracer

	objects map[string]*entry
	mu      sync.RWMutex
}

type entry struct {
	object *Object
	path   string
}

// RegistryOption configures the Registry.
type RegistryOption func(*Registry)

// WithEngineFactory sets the engine factory used for every object.
func WithEngineFactory(f engine.Factory) RegistryOption {
	return func(r *Registry) {
		r.factory = f
	}
}

// WithAccessControl makes Call require a session granted access to the
// object method.
func WithAccessControl(enforce bool) RegistryOption {
	return func(r *Registry) {
		r.enforce = enforce
	}
}

// WithLoadRetries retries failed loads up to n more times, delay apart.
func WithLoadRetries(n uint64, delay time.Duration) RegistryOption {
	return func(r *Registry) {
		r.loadRetries = n
		r.retryDelay = delay
	}
}

// NewRegistry creates a registry for plugin files under dir.
func NewRegistry(dir string, opts ...RegistryOption) *Registry {
	r := &Registry{
		dir:        dir,
		retryDelay: 100 * time.Millisecond,
		tracer:     otel.Tracer(tracerName),
		objects:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Discovered is a plugin file found by Discover.
type Discovered struct {
	Name string
	Path string
}

// ValidateName checks an object name.
func ValidateName(name string) error {
	if name == "" || !namePattern.MatchString(name) {
		return oops.In("plugin").Code(CodeInvalidName).With("plugin", name).
			Errorf("name %q must be '/'-separated segments of lowercase letters, digits, '_', '.', '-'", name)
	}
	if slices.Contains(strings.Split(name, "/"), "..") {
		return oops.In("plugin").Code(CodeInvalidName).With("plugin", name).
			Errorf("name %q must not contain '..' segments", name)
	}
	if len(name) > maxNameLength {
		return oops.In("plugin").Code(CodeInvalidName).With("plugin", name).
			Errorf("name must be %d characters or less, got %d", maxNameLength, len(name))
	}
	return nil
}

// Discover finds all plugin files below the registry directory. The object
// name is the file's path relative to the directory without extension.
// Files with invalid names are logged and skipped.
func (r *Registry) Discover(_ context.Context) ([]Discovered, error) {
	var found []Discovered
	err := filepath.WalkDir(r.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != pluginExt {
			return nil
		}
		rel, err := filepath.Rel(r.dir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(strings.TrimSuffix(rel, pluginExt))
		if err := ValidateName(name); err != nil {
			slog.Warn("skipping plugin with invalid name",
				"path", path,
				"error", err)
			return nil
		}
		found = append(found, Discovered{Name: name, Path: path})
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No plugins directory
		}
		return nil, oops.In("plugin").With("dir", r.dir).Hint("failed to read plugins directory").Wrap(err)
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found, nil
}

// LoadAll discovers and loads all plugins. Individual failures are logged
// and skipped so one broken plugin does not keep the others down.
func (r *Registry) LoadAll(ctx context.Context) error {
	discovered, err := r.Discover(ctx)
	if err != nil {
		return err
	}

	for _, d := range discovered {
		if err := r.Load(ctx, d); err != nil {
			errutil.LogError(slog.Default(), "failed to load plugin", err)
			continue
		}
	}

	return nil
}

// Load creates an object for d, loads it and registers it under d.Name,
// replacing and closing any object previously registered under that name.
func (r *Registry) Load(ctx context.Context, d Discovered) error {
	ctx, span := r.tracer.Start(ctx, "plugin.load", trace.WithAttributes(
		attribute.String("plugin.name", d.Name),
		attribute.String("plugin.path", d.Path),
	))
	defer span.End()

	if err := ValidateName(d.Name); err != nil {
		return r.loadFailed(span, d.Name, err)
	}

	var opts []Option
	if r.factory != nil {
		opts = append(opts, WithFactory(r.factory))
	}
	obj, err := New(ctx, d.Name, opts...)
	if err != nil {
		return r.loadFailed(span, d.Name, err)
	}

	if err := r.loadWithRetry(ctx, obj, d.Path); err != nil {
		obj.Close()
		return r.loadFailed(span, d.Name, err)
	}

	r.mu.Lock()
	old := r.objects[d.Name]
	r.objects[d.Name] = &entry{object: obj, path: d.Path}
	r.mu.Unlock()

	if old != nil {
		old.object.Close()
	}

	RecordLoad(d.Name, StatusSuccess)
	slog.Info("loaded plugin",
		"plugin", d.Name,
		"path", d.Path,
		"methods", obj.Methods())

	return nil
}

func (r *Registry) loadWithRetry(ctx context.Context, obj *Object, path string) error {
	backoff := retry.WithMaxRetries(r.loadRetries, retry.NewConstant(r.retryDelay))
	//nolint:wrapcheck // errors from Object.Load already carry context
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := obj.Load(ctx, path); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (r *Registry) loadFailed(span trace.Span, name string, err error) error {
	RecordLoad(name, StatusError)
	span.RecordError(err)
	span.SetStatus(codes.Error, "load failed")
	return err
}

// Reload tears down the named object's interpreter and loads its file
// again. On failure the object keeps its previous signature but stays
// unloaded until a later Reload succeeds.
func (r *Registry) Reload(ctx context.Context, name string) error {
	e, ok := r.lookup(name)
	if !ok {
		return oops.In("plugin").Code(CodeObjectNotFound).With("plugin", name).New("plugin not loaded")
	}

	e.object.Teardown()
	if err := r.loadWithRetry(ctx, e.object, e.path); err != nil {
		RecordLoad(name, StatusError)
		return err
	}
	RecordLoad(name, StatusSuccess)
	slog.Info("reloaded plugin", "plugin", name, "path", e.path)
	return nil
}

// ReloadAll reloads every registered object and loads newly discovered
// files. Objects whose files disappeared are removed.
func (r *Registry) ReloadAll(ctx context.Context) error {
	discovered, err := r.Discover(ctx)
	if err != nil {
		return err
	}

	present := make(map[string]bool, len(discovered))
	for _, d := range discovered {
		present[d.Name] = true
		if _, ok := r.lookup(d.Name); ok {
			if err := r.Reload(ctx, d.Name); err != nil {
				errutil.LogError(slog.Default(), "failed to reload plugin", err)
			}
			continue
		}
		if err := r.Load(ctx, d); err != nil {
			errutil.LogError(slog.Default(), "failed to load plugin", err)
		}
	}

	for _, name := range r.List() {
		if !present[name] {
			if err := r.Remove(ctx, name); err != nil {
				return err
			}
		}
	}
	return nil
}

// Remove unregisters and closes the named object. An in-flight call on the
// object finishes first.
func (r *Registry) Remove(_ context.Context, name string) error {
	r.mu.Lock()
	e, ok := r.objects[name]
	delete(r.objects, name)
	r.mu.Unlock()

	if !ok {
		return oops.In("plugin").Code(CodeObjectNotFound).With("plugin", name).New("plugin not loaded")
	}
	e.object.Close()
	slog.Info("removed plugin", "plugin", name)
	return nil
}

// Get returns the named object.
func (r *Registry) Get(name string) (*Object, bool) {
	e, ok := r.lookup(name)
	if !ok {
		return nil, false
	}
	return e.object, true
}

func (r *Registry) lookup(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.objects[name]
	return e, ok
}

// List returns the sorted names of registered objects.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.objects))
	for name := range r.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Signatures returns the signature blob of every registered object.
func (r *Registry) Signatures() map[string][]byte {
	r.mu.RLock()
	objects := make([]*Object, 0, len(r.objects))
	for _, e := range r.objects {
		objects = append(objects, e.object)
	}
	r.mu.RUnlock()

	sigs := make(map[string][]byte, len(objects))
	for _, obj := range objects {
		sigs[obj.Name()] = obj.Signature()
	}
	return sigs
}

// Call dispatches method on the named object and returns the result blob.
// The blob is returned alongside the error whenever the object wrote one.
func (r *Registry) Call(ctx context.Context, sess engine.Session, object, method string, args *blob.Field) ([]byte, error) {
	ctx, span := r.tracer.Start(ctx, "plugin.call", trace.WithAttributes(
		attribute.String("plugin.name", object),
		attribute.String("plugin.method", method),
	))
	defer span.End()

	labelObject, labelMethod := r.metricLabels(object, method)
	start := time.Now()
	data, err := r.call(ctx, sess, object, method, args)
	RecordCall(labelObject, labelMethod, callStatus(errutil.Code(err), err), time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "call failed")
	}
	return data, err
}

// metricLabels keeps caller-supplied names out of metric labels unless they
// name a registered object and a method in its signature.
func (r *Registry) metricLabels(object, method string) (string, string) {
	obj, ok := r.Get(object)
	if !ok {
		return LabelUnknown, LabelUnknown
	}
	if !obj.HasMethod(method) {
		return object, LabelUnknown
	}
	return object, method
}

func (r *Registry) call(ctx context.Context, sess engine.Session, object, method string, args *blob.Field) ([]byte, error) {
	obj, ok := r.Get(object)
	if !ok {
		return nil, oops.In("plugin").Code(CodeObjectNotFound).With("plugin", object).New("plugin not loaded")
	}

	if r.enforce && (sess == nil || !sess.Access(AccessScope, object, method, AccessPerm)) {
		slog.Warn("plugin call denied",
			"plugin", object,
			"method", method)
		return nil, oops.In("plugin").Code(CodeAccessDenied).With("plugin", object).With("method", method).New("access denied")
	}

	var out blob.Builder
	err := obj.Call(ctx, sess, method, args, &out)
	if out.Len() == 0 {
		return nil, err
	}
	return out.Bytes(), err
}

// Close closes every object and empties the registry.
func (r *Registry) Close(_ context.Context) error {
	r.mu.Lock()
	objects := r.objects
	r.objects = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range objects {
		e.object.Close()
	}
	return nil
}
