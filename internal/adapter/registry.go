package adapter

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/amishk599/jobcatalog/internal/config"
	"github.com/amishk599/jobcatalog/internal/model"
)

// Source pairs a source's client with its payload parser.
type Source struct {
	Name    string // source identifier from config
	Kind    string
	Company string
	Client  model.SourceClient
	Parser  model.PostingParser
}

// adapter is what every board implementation provides.
type adapter interface {
	model.SourceClient
	model.PostingParser
}

// Registry resolves source identifiers to their client and parser.
type Registry struct {
	sources map[string]Source
}

// NewRegistry builds a registry with one adapter per configured source.
func NewRegistry(cfgs []config.SourceConfig, client *http.Client) (*Registry, error) {
	r := &Registry{sources: make(map[string]Source, len(cfgs))}
	for _, c := range cfgs {
		a, err := newAdapter(c, client)
		if err != nil {
			return nil, err
		}
		r.Register(Source{Name: c.Name, Kind: c.Kind, Company: c.Company, Client: a, Parser: a})
	}
	return r, nil
}

// Register adds or replaces a source.
func (r *Registry) Register(s Source) {
	if r.sources == nil {
		r.sources = make(map[string]Source)
	}
	r.sources[s.Name] = s
}

// Get looks up a source by identifier.
func (r *Registry) Get(name string) (Source, bool) {
	s, ok := r.sources[name]
	return s, ok
}

// Parser returns the parser for name.
func (r *Registry) Parser(name string) (model.PostingParser, error) {
	s, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("no parser registered for source %q", name)
	}
	return s.Parser, nil
}

// All returns every source sorted by name.
func (r *Registry) All() []Source {
	out := make([]Source, 0, len(r.sources))
	for _, s := range r.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func newAdapter(c config.SourceConfig, client *http.Client) (adapter, error) {
	switch c.Kind {
	case "greenhouse":
		a := NewGreenhouseAdapter(c.BoardToken, c.Company, client)
		if c.BaseURL != "" {
			a.baseURL = c.BaseURL
		}
		return a, nil
	case "lever":
		a := NewLeverAdapter(c.BoardToken, c.Company, client)
		if c.BaseURL != "" {
			a.baseURL = c.BaseURL
		}
		return a, nil
	case "ashby":
		a := NewAshbyAdapter(c.BoardToken, c.Company, client)
		if c.BaseURL != "" {
			a.baseURL = c.BaseURL
		}
		return a, nil
	case "workday":
		return NewWorkdayAdapter(c.WorkdayURL, c.Company, client), nil
	default:
		return nil, fmt.Errorf("source %q: unsupported kind %q", c.Name, c.Kind)
	}
}
