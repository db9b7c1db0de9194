// Package namespace implements the server's URI-to-index namespace table:
// an append-only, linearly-searched list of URIs with two reserved slots,
// index 0 for the OPC Foundation standard namespace and index 1 lazily
// populated from the application URI on first observable use.
package namespace

import "sync"

// StandardURI is always installed at index 0.
const StandardURI = "http://opcfoundation.org/UA/"

// Index identifies a namespace table entry. The OPC UA wire format carries
// this as a 16-bit handle, and Index uses that same 16-bit width.
type Index uint16

// Registry is the namespace table owned by one server instance. Every
// method takes the Registry's own mutex, so it is safe for concurrent use
// with or without the server's service mutex held.
type Registry struct {
	mu  sync.Mutex
	uri []string
}

// New builds a Registry with index 0 pre-populated and index 1 reserved
// but empty until setupNs1 is called with a non-empty application URI.
func New() *Registry {
	return &Registry{uri: []string{StandardURI, ""}}
}

// Add appends uri if not already present and returns its index. Adding an
// already-present URI is idempotent: the table is unchanged and the
// existing index is returned.
func (r *Registry) Add(uri string) Index {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.add(uri)
}

func (r *Registry) add(uri string) Index {
	for i, u := range r.uri {
		if u == uri {
			return Index(i)
		}
	}
	r.uri = append(r.uri, uri)
	return Index(len(r.uri) - 1)
}

// LookupByURI returns the index of uri, or false if it has never been
// added.
func (r *Registry) LookupByURI(uri string) (Index, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, u := range r.uri {
		if u == uri {
			return Index(i), true
		}
	}
	return 0, false
}

// LookupByIndex returns the URI at idx. Per the resolved open question in
// the original C API (getNamespaceByIndex used index > size as its bounds
// check, making index == size an out-of-bounds read), this registry treats
// idx >= size as not-found.
func (r *Registry) LookupByIndex(idx Index) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if int(idx) >= len(r.uri) {
		return "", false
	}
	return r.uri[idx], true
}

// Size returns the current number of namespace entries.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.uri)
}

// SetupNs1 copies appURI into index 1 if that slot is still empty. It is
// called at the entry of every public namespace operation and from the
// server's startup, so any externally observable read of the table sees
// ns1 populated whenever appURI is non-empty.
func (r *Registry) SetupNs1(appURI string) {
	if appURI == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.uri) > 1 && r.uri[1] == "" {
		r.uri[1] = appURI
	}
}
