// Package docgen produces the generated document returned to the caller.
//
// The remote generator merges the normalized data into a DOCX template through
// the PDF services API and yields a PDF. The local generator is the fallback
// for deployments without services credentials or without a template for the
// document type: it returns the normalized data file itself.
package docgen

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cargodocs/cargodocs/internal/docservices"
	"github.com/cargodocs/cargodocs/internal/fileutils"
)

// Result describes a generated document staged on disk.
type Result struct {
	Path        string
	Filename    string
	ContentType string
}

// Remote generates documents through the PDF services API.
type Remote struct {
	client *docservices.Client

	log *slog.Logger
}

// NewRemote creates a Remote generator using the given services client.
func NewRemote(client *docservices.Client, log *slog.Logger) *Remote {
	if log == nil {
		log = slog.Default()
	}
	return &Remote{client: client, log: log}
}

// Generate uploads the template and the normalized data, runs a generation job
// and downloads the resulting PDF into workDir.
func (g *Remote) Generate(ctx context.Context, templatePath string, payload []byte, workDir string) (Result, error) {
	template, err := os.ReadFile(templatePath)
	if err != nil {
		return Result{}, fmt.Errorf("reading template: %v", err)
	}

	templateAsset, err := g.client.CreateAsset(ctx, docservices.MediaTypeDOCX)
	if err != nil {
		return Result{}, err
	}
	if err := g.client.UploadAsset(ctx, templateAsset.UploadURI, template, docservices.MediaTypeDOCX); err != nil {
		return Result{}, err
	}

	dataAsset, err := g.client.CreateAsset(ctx, docservices.MediaTypeJSON)
	if err != nil {
		return Result{}, err
	}
	if err := g.client.UploadAsset(ctx, dataAsset.UploadURI, payload, docservices.MediaTypeJSON); err != nil {
		return Result{}, err
	}

	location, err := g.client.StartDocGen(ctx, templateAsset.AssetID, dataAsset.AssetID)
	if err != nil {
		return Result{}, err
	}
	g.log.Debug("Generation job started", "location", location)

	info, err := g.client.PollJob(ctx, location)
	if err != nil {
		return Result{}, err
	}
	if info.DownloadURI == "" {
		return Result{}, fmt.Errorf("generation job finished without a download URI")
	}

	outPath := filepath.Join(workDir, "filled.pdf")
	if err := g.client.Download(ctx, info.DownloadURI, outPath); err != nil {
		return Result{}, err
	}

	return Result{
		Path:        outPath,
		Filename:    "filled.pdf",
		ContentType: docservices.MediaTypePDF,
	}, nil
}

// Auto picks the remote generator when one is available and a template is
// configured for the document type, and falls back to the local generator
// otherwise.
type Auto struct {
	remote *Remote
	local  *Local
}

// NewAuto creates an Auto generator. remote may be nil.
func NewAuto(remote *Remote) *Auto {
	return &Auto{remote: remote, local: NewLocal()}
}

// Generate dispatches to the remote or local generator.
func (g *Auto) Generate(ctx context.Context, templatePath string, payload []byte, workDir string) (Result, error) {
	if g.remote == nil || templatePath == "" {
		return g.local.Generate(ctx, templatePath, payload, workDir)
	}
	return g.remote.Generate(ctx, templatePath, payload, workDir)
}

// Local returns the normalized data file as the generated document.
type Local struct{}

// NewLocal creates a Local generator.
func NewLocal() *Local {
	return &Local{}
}

// Generate stages the normalized data under workDir. templatePath is ignored.
func (g *Local) Generate(ctx context.Context, templatePath string, payload []byte, workDir string) (Result, error) {
	outPath := filepath.Join(workDir, "filled_data.json")
	if err := fileutils.AtomicWrite(outPath, payload); err != nil {
		return Result{}, fmt.Errorf("staging data file: %w", err)
	}

	return Result{
		Path:        outPath,
		Filename:    "filled_data.json",
		ContentType: docservices.MediaTypeJSON,
	}, nil
}
