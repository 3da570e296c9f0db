package packaging

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"

	"vidslide/internal/services"
	"vidslide/internal/textutil"
)

// Format selects the package container.
type Format string

const (
	FormatZIP Format = "zip"
	FormatPDF Format = "pdf"
)

// ParseFormat validates a format name. Empty selects zip.
func ParseFormat(value string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(value))); f {
	case "":
		return FormatZIP, nil
	case FormatZIP, FormatPDF:
		return f, nil
	default:
		return "", services.Wrap(services.ErrValidation, "packaging", "format",
			fmt.Sprintf("unsupported format %q (want zip or pdf)", value), nil)
	}
}

// Request describes one package to build.
type Request struct {
	// Name is the package base name without extension.
	Name      string
	Images    []string
	OutputDir string
	Format    Format
	// PageSize is an fpdf page size name such as A4 or Letter.
	PageSize string
	// Progress, when set, is called after each image with the number done.
	Progress func(done, total int)
}

// Package writes the images into a single file and returns its path. The
// file appears atomically; a failed or cancelled build leaves nothing
// behind.
func Package(ctx context.Context, req Request) (string, error) {
	if len(req.Images) == 0 {
		return "", services.Wrap(services.ErrValidation, "packaging", "build", "no images to package", nil)
	}
	format, err := ParseFormat(string(req.Format))
	if err != nil {
		return "", err
	}
	name := textutil.SanitizeFileName(req.Name)
	if name == "" {
		name = "slides"
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create package dir: %w", err)
	}
	dest := filepath.Join(req.OutputDir, name+"."+string(format))
	tmp := dest + ".partial"
	defer func() { _ = os.Remove(tmp) }()

	switch format {
	case FormatPDF:
		err = writePDF(ctx, tmp, req)
	default:
		err = writeZIP(ctx, tmp, req)
	}
	if err != nil {
		return "", err
	}
	if err := os.Rename(tmp, dest); err != nil {
		return "", fmt.Errorf("finalize package: %w", err)
	}
	return dest, nil
}

func report(req Request, done int) {
	if req.Progress != nil {
		req.Progress(done, len(req.Images))
	}
}

func writeZIP(ctx context.Context, path string, req Request) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create zip: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for i, image := range req.Images {
		if err := ctx.Err(); err != nil {
			_ = zw.Close()
			return err
		}
		if err := addZipEntry(zw, image); err != nil {
			_ = zw.Close()
			return err
		}
		report(req, i+1)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish zip: %w", err)
	}
	return out.Close()
}

func addZipEntry(zw *zip.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = filepath.Base(path)
	// JPEG data does not compress further.
	header.Method = zip.Store
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("add %s: %w", header.Name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("write %s: %w", header.Name, err)
	}
	return nil
}

const pdfMargin = 5.0

func writePDF(ctx context.Context, path string, req Request) error {
	pageSize := strings.TrimSpace(req.PageSize)
	if pageSize == "" {
		pageSize = "A4"
	}
	pdf := fpdf.New("L", "mm", pageSize, "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(req.Name, true)
	pdf.SetCreator("vidslide", true)

	pageW, pageH := pdf.GetPageSize()
	boxW, boxH := pageW-2*pdfMargin, pageH-2*pdfMargin
	opts := fpdf.ImageOptions{ImageType: "JPG", ReadDpi: false}
	for i, image := range req.Images {
		if err := ctx.Err(); err != nil {
			return err
		}
		info := pdf.RegisterImageOptions(image, opts)
		if pdf.Err() {
			return fmt.Errorf("read %s: %w", filepath.Base(image), pdf.Error())
		}
		w, h := fit(info.Width(), info.Height(), boxW, boxH)
		pdf.AddPage()
		pdf.ImageOptions(image, (pageW-w)/2, (pageH-h)/2, w, h, false, opts, 0, "")
		if pdf.Err() {
			return fmt.Errorf("place %s: %w", filepath.Base(image), pdf.Error())
		}
		report(req, i+1)
	}
	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// fit scales w x h to the largest size inside boxW x boxH keeping the
// aspect ratio.
func fit(w, h, boxW, boxH float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return boxW, boxH
	}
	scale := min(boxW/w, boxH/h)
	return w * scale, h * scale
}
