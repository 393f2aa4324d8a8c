package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// maxBodySize caps JSON request bodies.
const maxBodySize = 1 << 20

// decodeJSON strictly decodes a JSON body into v. Unknown fields, trailing
// data and bodies over maxBodySize are rejected.
func decodeJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return fmt.Errorf("%w: missing content-type header", ErrUnsupportedMediaType)
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil || mediaType != "application/json" {
		return fmt.Errorf("%w: got %s", ErrUnsupportedMediaType, ct)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return errors.Join(ErrBadRequest, err)
	}
	if len(body) > maxBodySize {
		return fmt.Errorf("%w: request body too large (max %d bytes)", ErrBadRequest, maxBodySize)
	}
	if len(body) == 0 {
		return fmt.Errorf("%w: empty body", ErrBadRequest)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after JSON body", ErrBadRequest)
	}
	return nil
}

// requireQuery returns the named query parameters or ErrBadRequest listing
// the missing ones.
func requireQuery(r *http.Request, names ...string) ([]string, error) {
	q := r.URL.Query()
	out := make([]string, len(names))
	var missing []string
	for i, n := range names {
		out[i] = q.Get(n)
		if out[i] == "" {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing query parameters %v", ErrBadRequest, missing)
	}
	return out, nil
}
