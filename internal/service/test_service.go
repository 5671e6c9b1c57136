package service

import (
	"context"
	"errors"

	"github.com/stemsi/aptiq-proctor/internal/model"
	"github.com/stemsi/aptiq-proctor/internal/repository"
)

// ErrTestNotFound is returned for unknown test ids.
var ErrTestNotFound = errors.New("test not found")

// TestService serves the test catalog.
type TestService struct {
	catalog *repository.Catalog
}

// NewTestService creates a new TestService.
func NewTestService(catalog *repository.Catalog) *TestService {
	return &TestService{catalog: catalog}
}

// ListTests returns every test.
func (s *TestService) ListTests(ctx context.Context) []model.Test {
	return s.catalog.ListTests()
}

// GetTest returns the instructions data of one test.
func (s *TestService) GetTest(ctx context.Context, id string) (*model.Test, error) {
	t, err := s.catalog.GetTest(id)
	if err != nil {
		return nil, ErrTestNotFound
	}
	return t, nil
}
