package api

import "errors"

var (
	// ErrBadRequest indicates a malformed request body or missing parameter.
	ErrBadRequest = errors.New("bad request")

	// ErrUnsupportedMediaType indicates a body that is not application/json.
	ErrUnsupportedMediaType = errors.New("unsupported media type, expected application/json")
)
