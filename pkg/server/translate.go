package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/Sternrassler/table-translator/pkg/fetch"
	"github.com/Sternrassler/table-translator/pkg/language"
	"github.com/Sternrassler/table-translator/pkg/table"
	"golang.org/x/sync/errgroup"
)

// OutputMimeType is the mime type of every translated file.
const OutputMimeType = "text/csv"

// TranslateRequest is the body of POST /api/translate.
type TranslateRequest struct {
	Files []fetch.FileRef `json:"openaiFileIdRefs"`
	// Language selects whole-table mode. Absent or blank selects fill mode.
	Language *string `json:"language,omitempty"`
}

// TranslateResponse is the success body of POST /api/translate.
type TranslateResponse struct {
	Files []OutputFile `json:"openaiFileResponse"`
}

// OutputFile is one translated file, CSV encoded then base64 encoded.
type OutputFile struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Content  string `json:"content"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req TranslateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			jsonError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if len(req.Files) == 0 {
		jsonError(w, "openaiFileIdRefs must contain at least one file", http.StatusBadRequest)
		return
	}
	for i, ref := range req.Files {
		if err := ref.Validate(); err != nil {
			jsonError(w, fmt.Sprintf("openaiFileIdRefs[%d]: %v", i, err), http.StatusBadRequest)
			return
		}
	}

	target := ""
	if req.Language != nil && strings.TrimSpace(*req.Language) != "" {
		lang, err := language.Lookup(*req.Language)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		target = lang.Code
	}

	files, err := s.translateFiles(r.Context(), req.Files, target)
	if err != nil {
		s.logger.Error().Err(err).Int("files", len(req.Files)).Msg("Translation request failed")
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, TranslateResponse{Files: files})
}

// translateFiles processes every file concurrently. Any failure fails the
// whole request; results keep the input order.
func (s *Server) translateFiles(ctx context.Context, refs []fetch.FileRef, target string) ([]OutputFile, error) {
	out := make([]OutputFile, len(refs))

	var g errgroup.Group
	for i, ref := range refs {
		g.Go(func() error {
			file, err := s.translateFile(ctx, ref, target)
			if err != nil {
				return fmt.Errorf("%s: %w", ref.Name, err)
			}
			out[i] = file
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Server) translateFile(ctx context.Context, ref fetch.FileRef, target string) (OutputFile, error) {
	data, err := s.fetcher.Fetch(ctx, ref)
	if err != nil {
		return OutputFile{}, err
	}

	tbl, err := table.Decode(ref.Name, ref.MimeType, bytes.NewReader(data))
	if err != nil {
		return OutputFile{}, err
	}

	translated, report, err := s.translator.Translate(ctx, tbl, target)
	if err != nil {
		return OutputFile{}, err
	}

	encoded, err := table.EncodeCSV(translated)
	if err != nil {
		return OutputFile{}, err
	}

	s.logger.Info().
		Str("file", ref.Name).
		Str("run_id", report.RunID).
		Int("translated", report.Translated).
		Int("unresolved", report.Unresolved).
		Msg("File translated")

	return OutputFile{
		Name:     OutputName(ref.Name, ref.MimeType),
		MimeType: OutputMimeType,
		Content:  base64.StdEncoding.EncodeToString(encoded),
	}, nil
}

// OutputName returns the response file name for an input file. Spreadsheet
// inputs get a .csv extension since output is always CSV.
func OutputName(name, mimeType string) string {
	if table.IsXLSX(name, mimeType) {
		name = strings.TrimSuffix(name, path.Ext(name)) + ".csv"
	}
	return "translated_" + name
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, errorResponse{Error: msg})
}
