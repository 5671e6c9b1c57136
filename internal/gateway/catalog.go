package gateway

import (
	"context"
	"net/http"
	"net/url"

	"github.com/stemsi/aptiq-proctor/internal/model"
)

// ListTests returns the published tests.
func (g *HTTPGateway) ListTests(ctx context.Context) ([]model.Test, error) {
	var out []model.Test
	if err := g.do(ctx, http.MethodGet, "/tests", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTest returns one test definition for the instructions screen.
func (g *HTTPGateway) GetTest(ctx context.Context, testID string) (*model.Test, error) {
	var out model.Test
	if err := g.do(ctx, http.MethodGet, "/tests/"+url.PathEscape(testID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
