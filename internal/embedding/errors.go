package embedding

import "errors"

// Errors returned by the model lifecycle.
var (
	ErrModelClosed      = errors.New("embedding model closed")
	ErrModelUnavailable = errors.New("embedding model unavailable")
)
