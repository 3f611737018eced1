package httpadapter

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
)

//go:embed openapi.yaml
var openAPIDocument []byte

const maxQueryBodyBytes = 1 << 20

var loadQueryRoute = sync.OnceValues(func() (*routers.Route, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPIDocument)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}

	pathItem := doc.Paths.Value(queryEndpoint)
	if pathItem == nil || pathItem.Post == nil {
		return nil, fmt.Errorf("openapi document has no POST %s", queryEndpoint)
	}
	return &routers.Route{
		Spec:      doc,
		Path:      queryEndpoint,
		PathItem:  pathItem,
		Method:    http.MethodPost,
		Operation: pathItem.Post,
	}, nil
})

// validateQueryRequest checks the body against the QueryRequest schema and restores it for the handler.
func validateQueryRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, err := loadQueryRoute()
		if err != nil {
			writeError(w, r, err)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxQueryBodyBytes))
		if err != nil {
			writeErrorMessage(w, r, http.StatusRequestEntityTooLarge, "request body is too large")
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		err = openapi3filter.ValidateRequest(r.Context(), &openapi3filter.RequestValidationInput{
			Request: r,
			Route:   route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: func(context.Context, *openapi3filter.AuthenticationInput) error { return nil },
			},
		})
		if err != nil {
			writeErrorMessage(w, r, http.StatusBadRequest, validationMessage(err))
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

func validationMessage(err error) string {
	var requestErr *openapi3filter.RequestError
	if errors.As(err, &requestErr) {
		var schemaErr *openapi3.SchemaError
		if errors.As(requestErr.Err, &schemaErr) {
			field := schemaErr.JSONPointer()
			if len(field) > 0 {
				return fmt.Sprintf("invalid request: %s: %s", field[len(field)-1], schemaErr.Reason)
			}
			return "invalid request: " + schemaErr.Reason
		}
		return "invalid request: " + requestErr.Error()
	}
	return "invalid request: " + err.Error()
}
