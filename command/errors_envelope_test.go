package command

import (
	"net/http"
	"testing"

	"github.com/goliatone/go-credpool/core"
	goerrors "github.com/goliatone/go-errors"
)

func TestCommandDependencyErrorEnvelope(t *testing.T) {
	err := commandDependencyError("command: account service is required")

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected rich error envelope, got %T", err)
	}
	if richErr.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %s", richErr.Category)
	}
	if richErr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 code, got %d", richErr.Code)
	}
	if richErr.TextCode != core.ErrorCodeInternal {
		t.Fatalf("expected %s, got %s", core.ErrorCodeInternal, richErr.TextCode)
	}
}

func TestCommandInvalidInputErrorEnvelope(t *testing.T) {
	err := commandInvalidInputError("command: account id is required")

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected rich error envelope, got %T", err)
	}
	if richErr.Category != goerrors.CategoryBadInput {
		t.Fatalf("expected bad-input category, got %s", richErr.Category)
	}
	if richErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 code, got %d", richErr.Code)
	}
	if richErr.TextCode != core.ErrorCodeBadInput {
		t.Fatalf("expected %s, got %s", core.ErrorCodeBadInput, richErr.TextCode)
	}
}
