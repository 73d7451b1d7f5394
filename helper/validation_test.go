package helper

import (
	"strings"
	"testing"
)

type nestedCfg struct {
	Bucket string `mandatory:"yes" errorTxt:"bucket"`
}

type testCfg struct {
	Name    string   `mandatory:"yes" errorTxt:"name"`
	Keys    []string `mandatory:"yes" errorTxt:"keys"`
	Count   int
	Nested  nestedCfg
	private string
}

func TestValidateStructIsPopulated(t *testing.T) {
	err := ValidateStructIsPopulated(&testCfg{})
	if err == nil {
		t.Fatal("expected an error for an empty struct")
	}
	for _, want := range []string{"name", "keys", "bucket"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
	ok := testCfg{Name: "x", Keys: []string{"k"}, Nested: nestedCfg{Bucket: "b"}}
	if err := ValidateStructIsPopulated(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
