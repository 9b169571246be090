// Command imagedex enriches image records with captions, labels, colors,
// moderation flags and embeddings, and serves vector search over them.
//
// Usage:
//
//	imagedex [--env local] <command> [flags]
//
// Commands:
//
//	serve   - HTTP API (ingest, read, annotate, search)
//	enrich  - one incremental enrichment run
//	ingest  - register images from arguments or a JSON-lines file
//	search  - nearest-neighbor query from the command line
//	reindex - drop and recreate the vector index (redis)
//	version - build metadata
//
// Configuration is read from config/<env>.yaml. A .env file in the working
// directory is loaded first when present.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "Error: load .env:", err)
		os.Exit(1)
	}
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
