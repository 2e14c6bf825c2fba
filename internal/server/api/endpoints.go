package api

import (
	"context"
	"net/http"
	"sort"
)

// EndpointKind is the closed set of endpoints the server exposes.
type EndpointKind int

const (
	EndpointUser EndpointKind = iota + 1
	EndpointResource
	EndpointStorage
)

func (k EndpointKind) String() string {
	switch k {
	case EndpointUser:
		return "user"
	case EndpointResource:
		return "resource"
	case EndpointStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Path is the exact, case-sensitive path the endpoint is served on.
func (k EndpointKind) Path() string {
	switch k {
	case EndpointUser:
		return "/user"
	case EndpointResource:
		return "/resource"
	case EndpointStorage:
		return "/storage"
	default:
		return ""
	}
}

// HandlerFunc serves one method of one endpoint.
type HandlerFunc func(ctx context.Context, req *Request) Result

// UserHandler serves /user. None of its methods require auth.
type UserHandler interface {
	Login(ctx context.Context, req *Request) Result
	Register(ctx context.Context, req *Request) Result
	Logout(ctx context.Context, req *Request) Result
}

// ResourceHandler serves /resource.
type ResourceHandler interface {
	Download(ctx context.Context, req *Request) Result
	Upload(ctx context.Context, req *Request) Result
}

// StorageHandler serves /storage.
type StorageHandler interface {
	Get(ctx context.Context, req *Request) Result
	Put(ctx context.Context, req *Request) Result
	Delete(ctx context.Context, req *Request) Result
}

// Endpoint is one registered path. It is built once and never mutated.
type Endpoint struct {
	Kind         EndpointKind
	Path         string
	RequiresAuth bool
	Methods      map[string]HandlerFunc
}

// AllowedMethods returns the supported methods in sorted order.
func (e *Endpoint) AllowedMethods() []string {
	out := make([]string, 0, len(e.Methods))
	for m := range e.Methods {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Registry is the static path table.
type Registry struct {
	byPath    map[string]*Endpoint
	endpoints []*Endpoint
}

func NewRegistry(u UserHandler, r ResourceHandler, s StorageHandler) *Registry {
	endpoints := []*Endpoint{
		{
			Kind:         EndpointUser,
			RequiresAuth: false,
			Methods: map[string]HandlerFunc{
				http.MethodGet:  u.Login,
				http.MethodPut:  u.Register,
				http.MethodPost: u.Logout,
			},
		},
		{
			Kind:         EndpointResource,
			RequiresAuth: true,
			Methods: map[string]HandlerFunc{
				http.MethodGet: r.Download,
				http.MethodPut: r.Upload,
			},
		},
		{
			Kind:         EndpointStorage,
			RequiresAuth: true,
			Methods: map[string]HandlerFunc{
				http.MethodGet:    s.Get,
				http.MethodPut:    s.Put,
				http.MethodDelete: s.Delete,
			},
		},
	}

	reg := &Registry{byPath: make(map[string]*Endpoint, len(endpoints))}
	for _, ep := range endpoints {
		ep.Path = ep.Kind.Path()
		reg.byPath[ep.Path] = ep
		reg.endpoints = append(reg.endpoints, ep)
	}
	return reg
}

// Lookup matches path exactly.
func (r *Registry) Lookup(path string) (*Endpoint, bool) {
	ep, ok := r.byPath[path]
	return ep, ok
}

func (r *Registry) Endpoints() []*Endpoint {
	return r.endpoints
}
