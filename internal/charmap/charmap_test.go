package charmap

import "testing"

func TestLookupUTF8IsIdentity(t *testing.T) {
	for _, name := range []string{"", "utf-8", "UTF8"} {
		m, err := Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", name, err)
		}
		if got := m.ToHost("café"); got != "café" {
			t.Fatalf("ToHost = %q", got)
		}
	}
}

func TestLatin1RoundTrip(t *testing.T) {
	m, err := Lookup("Latin1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if m.Name() != "iso-8859-1" {
		t.Fatalf("Name = %q", m.Name())
	}
	host := m.ToHost("café")
	if host != "caf\xe9" {
		t.Fatalf("ToHost = %q", host)
	}
	if back := m.FromHost(host); back != "café" {
		t.Fatalf("FromHost = %q", back)
	}
}

func TestUnsupportedRuneIsReplaced(t *testing.T) {
	m, err := Lookup("iso-8859-1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	got := m.ToHost("a世b")
	if len(got) != 3 || got[0] != 'a' || got[2] != 'b' {
		t.Fatalf("ToHost = %q, want one replacement byte between a and b", got)
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, err := Lookup("klingon"); err == nil {
		t.Fatal("expected error")
	}
}

func TestNamesStartsWithUTF8(t *testing.T) {
	names := Names()
	if len(names) < 2 || names[0] != "utf-8" {
		t.Fatalf("Names = %v", names)
	}
	for _, n := range names {
		if _, err := Lookup(n); err != nil {
			t.Fatalf("Lookup(%q): %v", n, err)
		}
	}
}
