package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gatewarden/gatewarden/pkg/errors"
)

// maxAdminBodySize bounds admin API request bodies.  These carry small
// configuration payloads only.
const maxAdminBodySize = 1 << 20

// decodeJSON decodes the request body into out, rejecting unknown fields.
func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxAdminBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return errors.Wrap(err, errors.ErrCodeBodyNotJSON, "request body is not valid JSON")
	}
	return nil
}
