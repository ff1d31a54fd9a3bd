package i18n

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCulture(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestTranslateLookupAndFallback(t *testing.T) {
	dir := t.TempDir()
	writeCulture(t, dir, "strings.es-AR", "# spanish\nUser not found = Usuario no encontrado\n\nbroken line\nLogin=Ingresar\n")

	tr := New(dir, "strings", "en-US")
	if got := tr.Translate("es-AR", "user NOT found"); got != "Usuario no encontrado" {
		t.Fatalf("unexpected translation %q", got)
	}
	if got := tr.Translate("es-AR", "Logout"); got != "Logout" {
		t.Fatalf("expected fallback to word, got %q", got)
	}
	if got := tr.Translate("", "Login"); got != "Login" {
		t.Fatalf("default culture has no file, expected word, got %q", got)
	}
	if got := tr.Translate("fr-FR", "Login"); got != "Login" {
		t.Fatalf("missing culture should fall back, got %q", got)
	}
}

func TestAddKeyAppendsOnce(t *testing.T) {
	dir := t.TempDir()
	writeCulture(t, dir, "strings.en-US", "Login=Login\n")
	tr := New(dir, "strings", "en-US")

	if err := tr.AddKey("en-US", "Stock"); err != nil {
		t.Fatalf("AddKey: %v", err)
	}
	if err := tr.AddKey("en-US", "stock"); err != nil {
		t.Fatalf("AddKey: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "strings.en-US"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Count(string(data), "Stock=Stock") != 1 {
		t.Fatalf("expected a single appended key, got %q", data)
	}
	if err := tr.AddKey("en-US", "a=b"); err == nil {
		t.Fatal("expected error for key containing '='")
	}
}

func TestRecordMissing(t *testing.T) {
	dir := t.TempDir()
	tr := New(dir, "strings", "en-US", WithRecordMissing(true))
	if got := tr.Translate("en-US", "Suppliers"); got != "Suppliers" {
		t.Fatalf("unexpected %q", got)
	}
	tr.Reload()
	data, err := os.ReadFile(filepath.Join(dir, "strings.en-US"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.TrimSpace(string(data)) != "Suppliers=Suppliers" {
		t.Fatalf("unexpected file %q", data)
	}
}

func TestMatchAcceptLanguage(t *testing.T) {
	dir := t.TempDir()
	writeCulture(t, dir, "strings.en-US", "")
	writeCulture(t, dir, "strings.es-AR", "")
	tr := New(dir, "strings", "en-US")

	cases := map[string]string{
		"":                      "en-US",
		"es-AR,es;q=0.9":        "es-AR",
		"es":                    "es-AR",
		"de-DE":                 "en-US",
		"en-GB,en;q=0.8":        "en-US",
		"not a language header": "en-US",
	}
	for header, want := range cases {
		if got := tr.Match(header); got != want {
			t.Fatalf("Match(%q)=%q, want %q", header, got, want)
		}
	}
}
