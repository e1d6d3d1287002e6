package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFileRef_Validate(t *testing.T) {
	tests := []struct {
		name    string
		ref     FileRef
		wantErr bool
	}{
		{"valid", FileRef{Name: "a.csv", DownloadLink: "https://files.example.com/a.csv"}, false},
		{"missing name", FileRef{DownloadLink: "https://files.example.com/a.csv"}, true},
		{"missing link", FileRef{Name: "a.csv"}, true},
		{"bad scheme", FileRef{Name: "a.csv", DownloadLink: "file:///etc/passwd"}, true},
		{"no host", FileRef{Name: "a.csv", DownloadLink: "https:///a.csv"}, true},
		{"not a url", FileRef{Name: "a.csv", DownloadLink: "://"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ref.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFetch_Success(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("en,fr\nhello,\n"))
	}))
	defer server.Close()

	f := New(DefaultConfig())
	data, err := f.Fetch(context.Background(), FileRef{Name: "a.csv", DownloadLink: server.URL + "/a.csv"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(data) != "en,fr\nhello,\n" {
		t.Errorf("data = %q", data)
	}
	if gotUA != "table-translator" {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestFetch_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/big":
			w.Write([]byte(strings.Repeat("x", 2048)))
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			w.Write([]byte("late"))
		}
	}))
	defer server.Close()

	f := New(Config{Timeout: 50 * time.Millisecond, MaxBytes: 1024})

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantErr    error
	}{
		{"not found", "/missing", http.StatusNotFound, nil},
		{"too large", "/big", http.StatusOK, ErrTooLarge},
		{"timeout", "/slow", 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), FileRef{Name: "f.csv", DownloadLink: server.URL + tt.path})

			var ioErr *IOError
			if !errors.As(err, &ioErr) {
				t.Fatalf("expected IOError, got %v", err)
			}
			if ioErr.Name != "f.csv" {
				t.Errorf("Name = %q", ioErr.Name)
			}
			if ioErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", ioErr.StatusCode, tt.wantStatus)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFetch_InvalidRef(t *testing.T) {
	f := New(DefaultConfig())
	_, err := f.Fetch(context.Background(), FileRef{Name: "x.csv", DownloadLink: "ftp://example.com/x.csv"})

	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected IOError, got %v", err)
	}
}
