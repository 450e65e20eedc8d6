package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreflightOK(t *testing.T) {
	assert.NoError(t, Preflight(context.Background(), &fakeStore{}, &fakeGenerator{}))
}

func TestPreflightStoreDown(t *testing.T) {
	err := Preflight(context.Background(), &fakeStore{heartbeatErr: errConnRefused}, &fakeGenerator{})
	assert.ErrorIs(t, err, errConnRefused)
	assert.ErrorContains(t, err, "vector store not ready")
}

func TestPreflightModelServerDown(t *testing.T) {
	err := Preflight(context.Background(), &fakeStore{}, &fakeGenerator{versionErr: errConnRefused})
	assert.ErrorIs(t, err, errConnRefused)
	assert.ErrorContains(t, err, "language model server not ready")
}
