package yferr_test

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"yfengine/pkg/yferr"
)

func TestError_MatchesSentinelOfItsKind(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("fetching: %w", yferr.New(yferr.DataUnavailable, "ZZZZ", "info", "quote not found"))

	require.ErrorIs(t, err, yferr.ErrDataUnavailable)
	require.NotErrorIs(t, err, yferr.ErrSchema)
	require.Equal(t, yferr.DataUnavailable, yferr.KindOf(err))
	require.Zero(t, yferr.KindOf(io.EOF))
}

func TestError_Message(t *testing.T) {
	t.Parallel()

	err := &yferr.Error{Kind: yferr.Request, Symbol: "AAPL", Category: "history", Status: 500, Msg: "request rejected", Err: io.ErrUnexpectedEOF}

	require.Equal(t, "RequestError [AAPL/history] status=500: request rejected: unexpected EOF", err.Error())
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.Equal(t, "SchemaError", yferr.Schema.String())
}

func TestWithContext(t *testing.T) {
	t.Parallel()

	// Arrange
	orig := yferr.Wrap(yferr.AuthBootstrap, "", "", io.EOF, "session bootstrap failed")

	// Act
	err := yferr.WithContext(orig, "MSFT", "calendar")

	// Assert: a copy is filled in, the original is untouched
	var e *yferr.Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, "MSFT", e.Symbol)
	require.Equal(t, "calendar", e.Category)
	require.Empty(t, orig.Symbol)
	require.ErrorIs(t, err, io.EOF)

	// Act + Assert: existing context wins, foreign errors pass through
	require.Same(t, e, yferr.WithContext(e, "AAPL", "info"))
	require.Equal(t, io.EOF, yferr.WithContext(io.EOF, "AAPL", "info"))
}
