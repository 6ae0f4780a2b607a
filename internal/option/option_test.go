package option

import (
	"encoding/json"
	"testing"
)

type A struct {
	B  Option[bool] `json:",omitempty"`
	I  Option[int]
	Ii Option[int] `json:",omitempty"`
}

func TestEncoding(t *testing.T) {
	for _, tc := range []struct {
		a    A
		want string
	}{
		{
			a:    A{B: Some(false), I: Some(3), Ii: Some(3)},
			want: `{"B":false,"I":3,"Ii":3}`,
		},
		{
			a:    A{},
			want: `{"I":null}`,
		},
	} {
		b, err := json.Marshal(tc.a)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(b) != tc.want {
			t.Fatalf("got %s, wanted %s", b, tc.want)
		}
	}
}

func TestUnwrap(t *testing.T) {
	if v := UnwrapOr(Some(1), 2); v != 1 {
		t.Fatalf("got %d, wanted 1", v)
	}
	if v := UnwrapOr(None[int](), 2); v != 2 {
		t.Fatalf("got %d, wanted 2", v)
	}
	if v := UnwrapOrDefault(None[string]()); v != "" {
		t.Fatalf("got %q, wanted empty string", v)
	}
	if v := Unwrap(Some("a")); v != "a" {
		t.Fatalf("got %q, wanted %q", v, "a")
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("Unwrap of None did not panic")
		}
	}()
	Unwrap(None[int]())
}
