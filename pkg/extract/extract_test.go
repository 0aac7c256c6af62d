package extract

import (
	"errors"
	"testing"

	"carepulse-go/internal/config"
)

func TestTextPlainFile(t *testing.T) {
	e := New(config.PdfConfig{}, nil)

	content := "Patient intake notes.\nSecond line."
	got, err := e.Text([]byte(content), "notes.txt")
	if err != nil {
		t.Fatalf("Text returned error: %v", err)
	}
	if got != content {
		t.Errorf("expected verbatim content, got %q", got)
	}
}

func TestTextUnsupportedExtension(t *testing.T) {
	e := New(config.PdfConfig{}, nil)

	cases := []string{"records.xyz", "archive.zip", "noextension"}
	for _, name := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.Text([]byte("data"), name)
			if !errors.Is(err, ErrUnsupportedFileType) {
				t.Errorf("expected ErrUnsupportedFileType for %s, got %v", name, err)
			}
		})
	}
}

func TestTextCorruptPdfReportsExtractionFailure(t *testing.T) {
	e := New(config.PdfConfig{}, nil)

	_, err := e.Text([]byte("definitely not a pdf"), "broken.pdf")
	if !errors.Is(err, ErrExtractionFailed) {
		t.Errorf("expected ErrExtractionFailed, got %v", err)
	}
}
