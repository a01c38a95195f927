package probez

import "fmt"

// Register adds a data source named name. Names are unique per producer;
// registering an existing name fails with ErrDuplicateDataSource and leaves
// the original untouched. The handler may additionally implement TLSHandler
// and IncrementalStateHandler.
func (p *Producer) Register(name string, h Handler, params Params) (*DataSource, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidDataSource)
	}
	if h == nil {
		return nil, fmt.Errorf("%w: %q has no handler", ErrInvalidDataSource, name)
	}
	if p.closed.Load() {
		return nil, ErrProducerClosed
	}

	ds := &DataSource{
		producer: p,
		name:     name,
		handler:  h,
		params:   params,
	}
	if tls, ok := h.(TLSHandler); ok {
		ds.tls = tls
	}
	if incr, ok := h.(IncrementalStateHandler); ok {
		ds.incr = incr
	}
	for i := range ds.instances {
		ds.instances[i].init()
	}

	p.mu.Lock()
	if _, exists := p.sources[name]; exists {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrDuplicateDataSource, name)
	}
	p.sources[name] = ds
	p.mu.Unlock()

	p.log.Debug("data source registered", "name", name, "single_instance", params.SingleInstance)
	return ds, nil
}

// DataSource looks up a registered data source by name.
func (p *Producer) DataSource(name string) (*DataSource, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ds, ok := p.sources[name]
	return ds, ok
}

// DataSourceNames returns the registered names in no particular order.
func (p *Producer) DataSourceNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.sources))
	for name := range p.sources {
		names = append(names, name)
	}
	return names
}
