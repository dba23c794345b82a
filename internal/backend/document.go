package backend

import "context"

// Document is the document understanding path. It is routed to but not
// implemented: turns fail fast with ErrDocumentUnsupported before any
// model call, so no tokens are spent.
type Document struct{}

// NewDocument creates the placeholder document backend.
func NewDocument() *Document { return &Document{} }

// Generate always fails with ErrDocumentUnsupported.
func (d *Document) Generate(_ context.Context, _ Request, _ StreamCallback) (*Result, error) {
	return nil, ErrDocumentUnsupported
}
