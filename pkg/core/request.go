package core

// Request describes a REST call before execution. LimitID tags the call
// with its rate-limit path identifier so the throttling collaborator can
// apply the correct per-path budget.
type Request struct {
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Query       map[string]string `json:"query,omitempty"`
	Body        map[string]string `json:"body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	LimitID     string            `json:"limit_id"`
	RequireAuth bool              `json:"require_auth"`
}

// NewRequest creates a Request for the given method and path. The path
// doubles as the default rate-limit identifier.
func NewRequest(method, path string) *Request {
	return &Request{
		Method:  method,
		Path:    path,
		Query:   make(map[string]string),
		Body:    make(map[string]string),
		Headers: make(map[string]string),
		LimitID: path,
	}
}

// SetQuery sets a query parameter and returns the request for chaining.
func (r *Request) SetQuery(key, value string) *Request {
	if r.Query == nil {
		r.Query = make(map[string]string)
	}
	r.Query[key] = value
	return r
}

// SetBodyParam sets a body parameter and returns the request for chaining.
// Signed POST bodies are flat string maps so the signature can be computed
// over the exact canonical encoding that is transmitted.
func (r *Request) SetBodyParam(key, value string) *Request {
	if r.Body == nil {
		r.Body = make(map[string]string)
	}
	r.Body[key] = value
	return r
}

// SetHeader sets a header and returns the request for chaining.
func (r *Request) SetHeader(key, value string) *Request {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
	return r
}

// SetLimitID overrides the rate-limit identifier and returns the request.
func (r *Request) SetLimitID(id string) *Request {
	r.LimitID = id
	return r
}

// SetRequireAuth marks the request as requiring signing and returns it.
func (r *Request) SetRequireAuth(require bool) *Request {
	r.RequireAuth = require
	return r
}

// Params returns the parameter set the signature must cover: body for
// POST requests, query otherwise.
func (r *Request) Params() map[string]string {
	if r.Method == "POST" {
		return r.Body
	}
	return r.Query
}
