// Package extract produces structured document data from uploaded PDFs.
//
// The remote extractor runs an extract job on the PDF services API and returns
// the structuredData.json from the result archive. The local extractor is the
// fallback for deployments without services credentials: it pulls the plain
// text out of the PDF itself and wraps it in the same element shape, so the
// normalizer downstream does not care which one ran.
package extract

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/cargodocs/cargodocs/internal/docservices"
)

const structuredDataName = "structuredData.json"

// Remote extracts document data through the PDF services API.
type Remote struct {
	client *docservices.Client

	log *slog.Logger
}

// NewRemote creates a Remote extractor using the given services client.
func NewRemote(client *docservices.Client, log *slog.Logger) *Remote {
	if log == nil {
		log = slog.Default()
	}
	return &Remote{client: client, log: log}
}

// Extract uploads the PDF, runs an extract job and returns the
// structuredData.json contents. Intermediate files are staged under workDir
// and left in place for the caller to clean up.
func (r *Remote) Extract(ctx context.Context, pdfPath, workDir string) ([]byte, error) {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("reading PDF: %v", err)
	}

	asset, err := r.client.CreateAsset(ctx, docservices.MediaTypePDF)
	if err != nil {
		return nil, err
	}
	if err := r.client.UploadAsset(ctx, asset.UploadURI, data, docservices.MediaTypePDF); err != nil {
		return nil, err
	}

	location, err := r.client.StartExtract(ctx, asset.AssetID)
	if err != nil {
		return nil, err
	}
	r.log.Debug("Extract job started", "location", location)

	info, err := r.client.PollJob(ctx, location)
	if err != nil {
		return nil, err
	}
	if info.DownloadURI == "" {
		return nil, fmt.Errorf("extract job finished without a download URI")
	}

	archivePath := filepath.Join(workDir, "extract.zip")
	if err := r.client.Download(ctx, info.DownloadURI, archivePath); err != nil {
		return nil, err
	}

	extractDir := filepath.Join(workDir, "extract")
	if err := unzip(archivePath, extractDir); err != nil {
		return nil, fmt.Errorf("unpacking extract result: %w", err)
	}

	structuredPath := filepath.Join(extractDir, structuredDataName)
	if _, err := os.Stat(structuredPath); err != nil {
		// Some result archives nest the data under json/.
		alt := filepath.Join(extractDir, "json", structuredDataName)
		if _, altErr := os.Stat(alt); altErr != nil {
			return nil, fmt.Errorf("%s not found in extract result", structuredDataName)
		}
		structuredPath = alt
	}

	structured, err := os.ReadFile(structuredPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %v", structuredDataName, err)
	}
	return structured, nil
}

// Local extracts plain text directly from the PDF.
type Local struct {
	log *slog.Logger
}

// NewLocal creates a Local extractor.
func NewLocal(log *slog.Logger) *Local {
	if log == nil {
		log = slog.Default()
	}
	return &Local{log: log}
}

// Extract reads the PDF text and returns it wrapped in the structured data
// element shape the normalizer expects.
func (l *Local) Extract(ctx context.Context, pdfPath, workDir string) ([]byte, error) {
	f, reader, err := pdf.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	textReader, err := reader.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extracting PDF text: %w", err)
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, textReader); err != nil {
		return nil, fmt.Errorf("reading PDF text: %w", err)
	}

	l.log.Debug("Extracted text locally", "path", pdfPath, "bytes", sb.Len())

	structured, err := json.Marshal(map[string]any{
		"elements": []map[string]any{
			{"Text": sb.String()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling structured data: %v", err)
	}
	return structured, nil
}

// unzip extracts an archive into dir, refusing entries that escape it.
func unzip(archivePath, dir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %v", err)
	}
	defer zr.Close()

	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating extract directory: %v", err)
	}

	for _, file := range zr.File {
		target := filepath.Join(dir, filepath.Clean(file.Name))
		if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes extract directory", file.Name)
		}

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0750); err != nil {
				return fmt.Errorf("creating directory %q: %v", target, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
			return fmt.Errorf("creating directory for %q: %v", target, err)
		}

		src, err := file.Open()
		if err != nil {
			return fmt.Errorf("opening archive entry %q: %v", file.Name, err)
		}
		dst, err := os.Create(target)
		if err != nil {
			src.Close()
			return fmt.Errorf("creating %q: %v", target, err)
		}
		_, err = io.Copy(dst, src)
		src.Close()
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("writing %q: %v", target, err)
		}
	}
	return nil
}
