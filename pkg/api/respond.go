package api

import (
	"encoding/json"
	"net/http"

	"github.com/Munoverse/Catallaxyz-sub002/pkg/apierr"
)

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// respondError serializes an *apierr.Error's safe code/message pair,
// never the wrapped internal detail.
func respondError(w http.ResponseWriter, err error) {
	ae, ok := err.(*apierr.Error)
	if !ok {
		ae = apierr.Wrap(apierr.CodeInternal, "internal error", err)
	}
	code, message := ae.Safe()
	respondJSON(w, code.HTTPStatus(), errorResponse{Code: string(code), Message: message})
}
