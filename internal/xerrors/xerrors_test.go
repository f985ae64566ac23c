package xerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	wrapped := Wrap(KindGone, "download", errors.New("quota"))

	testcases := []struct {
		name string
		err  error
		kind Kind
	}{
		{name: "nil", err: nil, kind: KindInternal},
		{name: "wrapped error", err: wrapped, kind: KindGone},
		{name: "wrapped twice", err: fmt.Errorf("outer: %w", wrapped), kind: KindGone},
		{name: "message error", err: E(KindNotFound, "inspect", "File not found"), kind: KindNotFound},
		{name: "unknown error defaults internal", err: errors.New("other"), kind: KindInternal},
	}

	for _, tc := range testcases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.kind {
				t.Fatalf("KindOf() = %v, want %v", got, tc.kind)
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(KindInternal, "op", nil) != nil {
		t.Fatal("Wrap(nil) should be nil")
	}
}

func TestUnwrapKeepsSentinel(t *testing.T) {
	sentinel := errors.New("record not found")
	err := Wrap(KindNotFound, "inspect", sentinel)
	if !errors.Is(err, sentinel) {
		t.Fatal("errors.Is should see the wrapped sentinel")
	}
	if err.Error() != "inspect: not found: record not found" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestMessageHidesInternalCause(t *testing.T) {
	err := Wrap(KindInternal, "download", errors.New("dial tcp 10.0.0.1:9000: refused"))
	if got := Message(err); got != "internal error" {
		t.Fatalf("internal cause leaked: %q", got)
	}
	if got := Message(E(KindGone, "download", "Download limit reached")); got != "Download limit reached" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := Message(errors.New("raw")); got != "internal error" {
		t.Fatalf("unexpected message %q", got)
	}
	err = WrapMsg(KindInternal, "download", "Error retrieving file", errors.New("disk on fire"))
	if got := Message(err); got != "Error retrieving file" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := Message(Wrap(KindConflict, "upload", errors.New("duplicate key"))); got != "internal error" {
		t.Fatalf("conflict should surface as internal, got %q", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindInvalid:         http.StatusBadRequest,
		KindNotFound:        http.StatusNotFound,
		KindGone:            http.StatusGone,
		KindPayloadTooLarge: http.StatusRequestEntityTooLarge,
		KindConflict:        http.StatusInternalServerError,
		KindInternal:        http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := HTTPStatus(E(kind, "op", "")); got != want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", kind, got, want)
		}
	}
}
