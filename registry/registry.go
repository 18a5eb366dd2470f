// Package registry maps the name stored with a job to the code that runs it.
//
// Job types are registered once, at process startup. A worker then loads a
// stored job by id, and gets back a value built by the factory registered
// under the job's name.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/flusio/minz-worker/models"
	"github.com/flusio/minz-worker/models/jobs"
)

// ErrNotFound is returned by Load when the job does not exist, or when its
// name is not registered.
var ErrNotFound = errors.New("registry: job not found")

// ErrUnknownType is returned by Load when the job exists but its name is
// not registered. It wraps ErrNotFound.
var ErrUnknownType = fmt.Errorf("%w: unknown job type", ErrNotFound)

// A Performer runs a job with its stored arguments.
type Performer interface {
	Perform(ctx context.Context, args models.Args) error
}

// PerformFunc adapts a function to the Performer interface.
type PerformFunc func(ctx context.Context, args models.Args) error

func (f PerformFunc) Perform(ctx context.Context, args models.Args) error {
	return f(ctx, args)
}

// A Binder receives the stored job before it is performed.
type Binder interface {
	Bind(job *models.Job)
}

// A Factory builds a new value for every loaded job. The value should be a
// Performer; values that aren't are reported as malformed when run.
type Factory func() interface{}

// Registry maps job names to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a job type. It panics if name is empty or already
// registered, or if f is nil.
func (r *Registry) Register(name string, f Factory) {
	if name == "" {
		panic("registry: empty job name")
	}
	if f == nil {
		panic(fmt.Sprintf("registry: nil factory for job %q", name))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		panic(fmt.Sprintf("registry: job %q registered twice", name))
	}
	r.factories[name] = f
}

// RegisterFunc registers a job type that runs f.
func (r *Registry) RegisterFunc(name string, f PerformFunc) {
	if f == nil {
		panic(fmt.Sprintf("registry: nil func for job %q", name))
	}
	r.Register(name, func() interface{} { return f })
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Names returns the registered job names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// An Instance is a stored job, along with the value built for it.
type Instance struct {
	Job   *models.Job
	Value interface{}
}

// Load fetches the job with the given id and builds its value. Missing jobs
// and unregistered names both return an error wrapping ErrNotFound; the
// latter also wraps ErrUnknownType.
func (r *Registry) Load(id int64) (*Instance, error) {
	job, err := jobs.Get(id)
	if err == jobs.ErrNotFound {
		return nil, fmt.Errorf("%w: no job with id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	f, ok := r.Lookup(job.Name)
	if !ok {
		return nil, fmt.Errorf("%w: job %d is %q", ErrUnknownType, id, job.Name)
	}
	v := f()
	if b, ok := v.(Binder); ok {
		b.Bind(job)
	}
	return &Instance{Job: job, Value: v}, nil
}

type ctxKey struct{}

// WithJob returns a context carrying job.
func WithJob(ctx context.Context, job *models.Job) context.Context {
	return context.WithValue(ctx, ctxKey{}, job)
}

// JobFromContext returns the job being performed, if any.
func JobFromContext(ctx context.Context) (*models.Job, bool) {
	job, ok := ctx.Value(ctxKey{}).(*models.Job)
	return job, ok
}
