package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/btcsuite/btclog"
)

func TestUnauthorizedHasStatusCode(t *testing.T) {
	err := unauthorized("bad macaroon")
	if err.status != http.StatusUnauthorized {
		t.Errorf("got status %d, want %d", err.status, http.StatusUnauthorized)
	}
	if err.Error() != "bad macaroon" {
		t.Errorf("got detail %q, want %q", err.Error(), "bad macaroon")
	}
}

func TestBadRequestWrapsUnderlyingError(t *testing.T) {
	underlying := errString("malformed body")
	err := badRequest(underlying)
	if err.status != http.StatusBadRequest {
		t.Errorf("got status %d, want %d", err.status, http.StatusBadRequest)
	}
	if err.Error() != "malformed body" {
		t.Errorf("got detail %q, want %q", err.Error(), "malformed body")
	}
}

func TestNotFoundHasStatusCode(t *testing.T) {
	err := notFound("no such channel")
	if err.status != http.StatusNotFound {
		t.Errorf("got status %d, want %d", err.status, http.StatusNotFound)
	}
}

func TestInternalServerErrorWrapsUnderlyingError(t *testing.T) {
	err := internalServerError(errString("boom"))
	if err.status != http.StatusInternalServerError {
		t.Errorf("got status %d, want %d", err.status, http.StatusInternalServerError)
	}
	if err.Error() != "boom" {
		t.Errorf("got detail %q, want %q", err.Error(), "boom")
	}
}

func TestWriteErrorWritesApiErrorStatusAndBody(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, btclog.Disabled, notFound("no such peer"))

	if rec.Code != http.StatusNotFound {
		t.Errorf("got status %d, want %d", rec.Code, http.StatusNotFound)
	}

	var body Error
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("unexpected error decoding body: %v", err)
	}
	wantStatus := fmt.Sprintf("%d %s", http.StatusNotFound, http.StatusText(http.StatusNotFound))
	if body.Status != wantStatus {
		t.Errorf("got status text %q, want %q", body.Status, wantStatus)
	}
	if body.Detail != "no such peer" {
		t.Errorf("got detail %q, want %q", body.Detail, "no such peer")
	}
}

func TestWriteErrorDefaultsUnwrappedErrorsToInternalServerError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, btclog.Disabled, errString("unexpected failure"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("got status %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestWriteJSONSetsContentTypeAndEncodesBody(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]string{"hello": "world"})

	if got, want := rec.Header().Get("Content-Type"), "application/json"; got != want {
		t.Errorf("got content-type %q, want %q", got, want)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("got status %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("unexpected error decoding body: %v", err)
	}
	if body["hello"] != "world" {
		t.Errorf("got body %v, want hello=world", body)
	}
}

func TestWriteJSONWritesNoBodyWhenNil(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusNoContent, nil)

	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rec.Body.String())
	}
}

type errString string

func (e errString) Error() string { return string(e) }
