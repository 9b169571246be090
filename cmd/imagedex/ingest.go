package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	ingestuc "github.com/kailas-cloud/imagedex/internal/usecase/ingest"
)

var ingestFlags struct {
	bucket string
	file   string
}

// ingestLine is one JSON-lines input record.
type ingestLine struct {
	Bucket    string `json:"bucket"`
	Path      string `json:"path"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	CompanyID string `json:"company_id"`
	AlbumID   string `json:"album_id"`
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Register images for enrichment",
	Long: `Register images by storage path. Ids derive from bucket and path, so
ingesting the same object twice updates one record.

Input is either positional paths (with --bucket) or a JSON-lines file of
{"bucket","path","name","url","width","height","company_id","album_id"}.
Use --file - to read from stdin.

Examples:
  imagedex ingest --bucket photos beach/dog.jpg beach/cat.jpg
  imagedex ingest --file images.jsonl`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestFlags.bucket, "bucket", "b", "", "bucket for positional paths")
	ingestCmd.Flags().StringVarP(&ingestFlags.file, "file", "f", "", "JSON-lines input file (- for stdin)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	reqs := make([]ingestuc.Request, 0, len(args))
	for _, p := range args {
		reqs = append(reqs, ingestuc.Request{Bucket: ingestFlags.bucket, Path: p})
	}
	if ingestFlags.file != "" {
		fromFile, err := readIngestFile(cmd.InOrStdin(), ingestFlags.file)
		if err != nil {
			return err
		}
		reqs = append(reqs, fromFile...)
	}
	if len(reqs) == 0 {
		return errors.New("nothing to ingest: pass paths or --file")
	}

	a, err := newApp(cmd.Context(), envName)
	if err != nil {
		return err
	}
	defer a.Close()

	svc := ingestuc.New(a.images)
	var created, updated, failed int
	for start := 0; start < len(reqs); start += ingestuc.MaxBatchSize {
		end := min(start+ingestuc.MaxBatchSize, len(reqs))
		for i, res := range svc.AddAll(cmd.Context(), reqs[start:end]) {
			switch {
			case res.Err != nil:
				failed++
				a.logger.Warn("Ingest failed",
					zap.String("path", reqs[start+i].Path), zap.Error(res.Err))
			case res.Created:
				created++
			default:
				updated++
			}
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "created=%d updated=%d failed=%d\n", created, updated, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(reqs))
	}
	return nil
}

func readIngestFile(stdin io.Reader, path string) ([]ingestuc.Request, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	return parseIngestLines(r)
}

func parseIngestLines(r io.Reader) ([]ingestuc.Request, error) {
	var out []ingestuc.Request
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var l ingestLine
		if err := json.Unmarshal(b, &l); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, ingestuc.Request{
			Bucket:    l.Bucket,
			Path:      l.Path,
			Name:      l.Name,
			URL:       l.URL,
			Width:     l.Width,
			Height:    l.Height,
			CompanyID: l.CompanyID,
			AlbumID:   l.AlbumID,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ingest input: %w", err)
	}
	return out, nil
}
