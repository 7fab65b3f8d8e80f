package domain

import "testing"

func TestStatusValid(t *testing.T) {
	for _, s := range Statuses {
		if !s.Valid() {
			t.Fatalf("expected %s to be valid", s)
		}
	}
	if Status("archived").Valid() {
		t.Fatal("expected unknown status to be invalid")
	}
	if Status("").Valid() {
		t.Fatal("expected empty status to be invalid")
	}
}
