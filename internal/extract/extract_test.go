package extract_test

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/cargodocs/cargodocs/internal/docservices"
	"github.com/cargodocs/cargodocs/internal/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// zipArchive builds an in-memory zip with the given entries.
func zipArchive(t *testing.T, entries map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err, "Setup: cannot create zip entry")
		_, err = w.Write([]byte(content))
		require.NoError(t, err, "Setup: cannot write zip entry")
	}
	require.NoError(t, zw.Close(), "Setup: cannot close zip")
	return buf.Bytes()
}

// fakeServices serves the full extract job flow, handing back the given result
// archive on download.
func fakeServices(t *testing.T, archive []byte, jobStatus string) *httptest.Server {
	t.Helper()

	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("POST /assets", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"assetID":"asset-1","uploadUri":"%s/upload/asset-1"}`, server.URL)
	})
	mux.HandleFunc("PUT /upload/asset-1", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("POST /operation/extractpdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", server.URL+"/job/1")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("GET /job/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"status":%q,"downloadUri":"%s/download/1"}`, jobStatus, server.URL)
	})
	mux.HandleFunc("GET /download/1", func(w http.ResponseWriter, r *http.Request) {
		_, err := w.Write(archive)
		assert.NoError(t, err, "Setup: cannot serve archive")
	})

	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestRemoteExtract(t *testing.T) {
	t.Parallel()

	const structured = `{"elements":[{"Text":"Shipment No: SHP-1"}]}`

	tests := map[string]struct {
		entries   map[string]string
		jobStatus string

		wantErr bool
	}{
		"Data at archive root": {
			entries:   map[string]string{"structuredData.json": structured},
			jobStatus: "done",
		},
		"Data nested under json directory": {
			entries:   map[string]string{"json/structuredData.json": structured},
			jobStatus: "done",
		},
		"Extra entries are ignored": {
			entries: map[string]string{
				"structuredData.json": structured,
				"figures/fig1.png":    "png bytes",
				"tables/table1.csv":   "a,b",
			},
			jobStatus: "done",
		},
		"Archive without structured data": {
			entries:   map[string]string{"readme.txt": "nothing here"},
			jobStatus: "done",
			wantErr:   true,
		},
		"Failed job": {
			entries:   map[string]string{"structuredData.json": structured},
			jobStatus: "failed",
			wantErr:   true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			server := fakeServices(t, zipArchive(t, tc.entries), tc.jobStatus)

			client, err := docservices.New(docservices.Config{
				Host:        server.URL,
				ClientID:    "id",
				AccessToken: "token",
			})
			require.NoError(t, err, "Setup: cannot create client")

			workDir := t.TempDir()
			pdfPath := filepath.Join(workDir, "input.pdf")
			require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-fake"), 0600), "Setup: cannot write input")

			got, err := extract.NewRemote(client, nil).Extract(context.Background(), pdfPath, workDir)
			if tc.wantErr {
				require.Error(t, err, "Extract should fail")
				return
			}
			require.NoError(t, err, "Extract should succeed")
			assert.JSONEq(t, structured, string(got), "Extract should return the structured data contents")
		})
	}
}

func TestRemoteExtractMissingInput(t *testing.T) {
	t.Parallel()

	client, err := docservices.New(docservices.Config{ClientID: "id", AccessToken: "token"})
	require.NoError(t, err, "Setup: cannot create client")

	_, err = extract.NewRemote(client, nil).Extract(context.Background(),
		filepath.Join(t.TempDir(), "missing.pdf"), t.TempDir())
	require.Error(t, err, "Extract should fail on a missing input file")
}

func TestRemoteExtractRejectsEscapingArchive(t *testing.T) {
	t.Parallel()

	// Hand-build an archive whose entry path climbs out of the extract dir.
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "../escape.txt", Method: zip.Store})
	require.NoError(t, err, "Setup: cannot create zip entry")
	_, err = w.Write([]byte("outside"))
	require.NoError(t, err, "Setup: cannot write zip entry")
	require.NoError(t, zw.Close(), "Setup: cannot close zip")

	server := fakeServices(t, buf.Bytes(), "done")

	client, err := docservices.New(docservices.Config{
		Host:        server.URL,
		ClientID:    "id",
		AccessToken: "token",
	})
	require.NoError(t, err, "Setup: cannot create client")

	workDir := t.TempDir()
	pdfPath := filepath.Join(workDir, "input.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-fake"), 0600), "Setup: cannot write input")

	_, err = extract.NewRemote(client, nil).Extract(context.Background(), pdfPath, workDir)
	require.Error(t, err, "Entries escaping the extract directory should be refused")
	assert.NoFileExists(t, filepath.Join(workDir, "..", "escape.txt"), "Nothing should be written outside the work directory")
}

func TestLocalExtractErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		content []byte
		missing bool
	}{
		"Missing file":  {missing: true},
		"Not a PDF":     {content: []byte("plain text")},
		"Truncated PDF": {content: []byte("%PDF-1.4\nbroken")},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "input.pdf")
			if !tc.missing {
				require.NoError(t, os.WriteFile(path, tc.content, 0600), "Setup: cannot write input")
			}

			_, err := extract.NewLocal(nil).Extract(context.Background(), path, t.TempDir())
			require.Error(t, err, "Extract should reject unreadable input")
		})
	}
}
