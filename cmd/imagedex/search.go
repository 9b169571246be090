package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/imagedex/internal/domain/image"
	searchuc "github.com/kailas-cloud/imagedex/internal/usecase/search"
)

var searchFlags struct {
	text     string
	id       string
	vector   []float32
	field    string
	k        int
	distance string
}

// searchHit is one printed result line.
type searchHit struct {
	ID          string   `json:"id"`
	Path        string   `json:"path"`
	Description string   `json:"description,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	Distance    float64  `json:"distance"`
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Find the nearest images to a text, an image id or a vector",
	Long: `Query the vector index. Exactly one of --text, --id or --vector selects
the query. Results print as JSON lines, closest first.

Examples:
  imagedex search --text "dog on a beach" --field text_embedding_512
  imagedex search --text "red car" --field image_embedding_1408 --k 20
  imagedex search --id 0f1e2d3c4b5a69788796a5b4c3d2e1f0 --field image_embedding_512 --distance cosine`,
	Args: cobra.NoArgs,
	RunE: runSearch,
}

func init() {
	f := searchCmd.Flags()
	f.StringVar(&searchFlags.text, "text", "", "query text, embedded at the field's dimension")
	f.StringVar(&searchFlags.id, "id", "", "image id whose stored vector is the query")
	f.Float32SliceVar(&searchFlags.vector, "vector", nil, "comma-separated query vector")
	f.StringVar(&searchFlags.field, "field", "", "embedding field, e.g. text_embedding_512")
	f.IntVar(&searchFlags.k, "k", searchuc.DefaultK, "number of results")
	f.StringVar(&searchFlags.distance, "distance", "", "dot_product, cosine or euclidean (default from config)")
	_ = searchCmd.MarkFlagRequired("field")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, _ []string) error {
	modes := 0
	for _, set := range []bool{searchFlags.text != "", searchFlags.id != "", len(searchFlags.vector) > 0} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		return errors.New("exactly one of --text, --id or --vector is required")
	}
	dist, err := image.ParseDistance(searchFlags.distance)
	if err != nil {
		return err
	}
	if searchFlags.distance == "" {
		dist = ""
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, envName)
	if err != nil {
		return err
	}
	defer a.Close()

	svc, err := buildSearch(cmd, a, searchFlags.text != "")
	if err != nil {
		return err
	}

	field := image.EmbeddingField(searchFlags.field)
	var hits []image.Neighbor
	switch {
	case searchFlags.text != "":
		hits, err = svc.SearchText(ctx, searchFlags.text, field, searchFlags.k, dist)
	case searchFlags.id != "":
		hits, err = svc.SimilarTo(ctx, searchFlags.id, field, searchFlags.k, dist)
	default:
		hits, err = svc.FindNearest(ctx, searchuc.Query{
			Vector: searchFlags.vector, Field: field, K: searchFlags.k, Distance: dist,
		})
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for i := range hits {
		r := &hits[i].Record
		if err := enc.Encode(searchHit{
			ID: r.ID, Path: r.Path, Description: r.Description, Labels: r.Labels, Distance: hits[i].Distance,
		}); err != nil {
			return err
		}
	}
	return nil
}

// buildSearch wires the search service; the text embedder is only built
// when a text query needs it.
func buildSearch(cmd *cobra.Command, a *app, needText bool) (*searchuc.Service, error) {
	svc := searchuc.New(a.images, a.cfg.Fields())
	if ds := a.cfg.ParsedDistances(); len(ds) > 0 {
		svc.WithDefaultDistance(ds[0])
	}
	if !needText {
		return svc, nil
	}
	p, err := a.buildProviders(cmd.Context())
	if err != nil {
		return nil, err
	}
	if p.text != nil {
		svc.WithTextEmbedder(p.text)
	}
	return svc, nil
}
