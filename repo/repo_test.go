package repo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIError_Is(t *testing.T) {
	notFound := &APIError{Operation: "get contents", StatusCode: 404, Body: `{"message":"Not Found"}`}
	assert.True(t, errors.Is(notFound, ErrNotFound))
	assert.False(t, errors.Is(notFound, ErrConflict))

	conflict := &APIError{StatusCode: 409, Body: "does not match"}
	assert.True(t, errors.Is(fmt.Errorf("write: %w", conflict), ErrConflict))

	staleSHA := &APIError{StatusCode: 422, Body: `{"message":"Invalid request.\n\n\"sha\" wasn't supplied."}`}
	assert.True(t, errors.Is(staleSHA, ErrConflict))

	validation := &APIError{StatusCode: 422, Body: `{"message":"Reference already exists"}`}
	assert.False(t, errors.Is(validation, ErrConflict))

	assert.Equal(t, `GitHub API error: 404 - {"message":"Not Found"}`, notFound.Error())
}

func TestCommitSubject(t *testing.T) {
	c := Commit{Message: "feat: add the thing\n\nlong body"}
	assert.Equal(t, "feat: add the thing", c.Subject(0))
	assert.Equal(t, "feat: add", c.Subject(9))
	assert.Equal(t, "héllo", Commit{Message: "héllo wörld"}.Subject(5))
}

func TestCleanPath(t *testing.T) {
	assert.Equal(t, "", CleanPath("."))
	assert.Equal(t, "", CleanPath(" / "))
	assert.Equal(t, "src/app", CleanPath("/src/app/"))
}
