// vectorizer-cli is a standalone administrative client for a single
// collection's on-disk WAL directory. A prior CLI generation dialed a
// running gRPC server and drove a VectorDBClient; this module has no
// vector CRUD/search network surface (see cmd/vectorizerd), so this tool
// opens the collection directly with pkg/collection.Open/New and drives
// it in-process, the way an operator would run a one-off repair or
// inspection script against a database's data directory.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/vectorizer-db/vectorizer/pkg/collection"
	"github.com/vectorizer-db/vectorizer/pkg/distance"
)

const cliVersion = "0.1.0"

var (
	walDir    string
	dimension int
	metric    string
)

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	if command == "version" {
		fmt.Printf("vectorizer-cli v%s\n", cliVersion)
		return
	}
	if command == "help" || command == "-h" || command == "--help" {
		showUsage()
		return
	}

	switch command {
	case "insert":
		handleInsert(os.Args[2:])
	case "search":
		handleSearch(os.Args[2:])
	case "delete":
		handleDelete(os.Args[2:])
	case "get":
		handleGet(os.Args[2:])
	case "stats":
		handleStats(os.Args[2:])
	case "health":
		handleHealth(os.Args[2:])
	default:
		fmt.Printf("Unknown command: %s\n", command)
		showUsage()
		os.Exit(1)
	}
}

func commonFlags(fs *flag.FlagSet) {
	fs.StringVar(&walDir, "wal-dir", "", "collection WAL directory (required)")
	fs.IntVar(&dimension, "dimension", 768, "vector dimensionality; must match the vectors already in the directory")
	fs.StringVar(&metric, "metric", "cosine", "distance metric: cosine, l2, dot")
}

func openCollection() *collection.Collection {
	if walDir == "" {
		fmt.Println("Error: -wal-dir is required")
		os.Exit(1)
	}

	m, err := parseMetric(metric)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	cfg := collection.Config{
		Name:      "cli",
		Dimension: dimension,
		Metric:    m,
		WALDir:    walDir,
	}

	c, err := collection.Open(cfg, "")
	if err != nil {
		fmt.Printf("Error opening collection at %s: %v\n", walDir, err)
		os.Exit(1)
	}
	return c
}

func parseMetric(s string) (distance.Metric, error) {
	switch strings.ToLower(s) {
	case "cosine":
		return distance.Cosine, nil
	case "l2", "euclidean":
		return distance.L2, nil
	case "dot", "dotproduct":
		return distance.Dot, nil
	default:
		return 0, fmt.Errorf("unknown metric %q", s)
	}
}

func handleInsert(args []string) {
	fs := flag.NewFlagSet("insert", flag.ExitOnError)
	commonFlags(fs)
	var (
		id          = fs.String("id", "", "vector id (required)")
		vectorStr   = fs.String("vector", "", "vector as JSON array (required)")
		payloadStr  = fs.String("payload", "{}", "payload as JSON object")
	)
	fs.Parse(args)

	if *id == "" || *vectorStr == "" {
		fmt.Println("Error: -id and -vector are required")
		fs.Usage()
		os.Exit(1)
	}

	vector, err := parseVector(*vectorStr)
	if err != nil {
		fmt.Printf("Error parsing vector: %v\n", err)
		os.Exit(1)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(*payloadStr), &payload); err != nil {
		fmt.Printf("Error parsing payload: %v\n", err)
		os.Exit(1)
	}

	c := openCollection()
	defer c.Close()

	if err := c.Insert(*id, vector, payload); err != nil {
		fmt.Printf("Insert failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("inserted %s\n", *id)
}

func handleSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	commonFlags(fs)
	var (
		queryStr    = fs.String("query", "", "query vector as JSON array (required)")
		k           = fs.Int("k", 10, "number of results")
		efSearch    = fs.Int("ef", 0, "efSearch override, 0 uses collection default")
		withPayload = fs.Bool("with-payload", true, "include payload in results")
	)
	fs.Parse(args)

	if *queryStr == "" {
		fmt.Println("Error: -query is required")
		fs.Usage()
		os.Exit(1)
	}

	query, err := parseVector(*queryStr)
	if err != nil {
		fmt.Printf("Error parsing query vector: %v\n", err)
		os.Exit(1)
	}

	c := openCollection()
	defer c.Close()

	hits, err := c.Search(query, *k, collection.SearchParams{
		EfSearch:    *efSearch,
		WithPayload: *withPayload,
	})
	if err != nil {
		fmt.Printf("Search failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("found %d result(s)\n\n", len(hits))
	for i, h := range hits {
		fmt.Printf("%d. id=%s score=%.6f\n", i+1, h.ID, h.Score)
		if len(h.Payload) > 0 {
			b, _ := json.Marshal(h.Payload)
			fmt.Printf("   payload=%s\n", b)
		}
	}
}

func handleDelete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	commonFlags(fs)
	id := fs.String("id", "", "vector id to delete (required)")
	fs.Parse(args)

	if *id == "" {
		fmt.Println("Error: -id is required")
		fs.Usage()
		os.Exit(1)
	}

	c := openCollection()
	defer c.Close()

	if err := c.Delete(*id); err != nil {
		fmt.Printf("Delete failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("deleted %s\n", *id)
}

func handleGet(args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	commonFlags(fs)
	id := fs.String("id", "", "vector id to fetch (required)")
	fs.Parse(args)

	if *id == "" {
		fmt.Println("Error: -id is required")
		fs.Usage()
		os.Exit(1)
	}

	c := openCollection()
	defer c.Close()

	vector, payload, err := c.Get(*id)
	if err != nil {
		fmt.Printf("Get failed: %v\n", err)
		os.Exit(1)
	}

	b, _ := json.Marshal(payload)
	fmt.Printf("vector=%s\npayload=%s\n", formatVector(vector), b)
}

func handleStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	commonFlags(fs)
	fs.Parse(args)

	c := openCollection()
	defer c.Close()

	fmt.Printf("vectors: %d\n", c.Len())
	fmt.Printf("state:   %s\n", c.State())
	fmt.Printf("version: %d\n", c.Version())
}

func handleHealth(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	commonFlags(fs)
	fs.Parse(args)

	c := openCollection()
	defer c.Close()

	h := c.Health()
	fmt.Printf("name:            %s\n", h.Name)
	fmt.Printf("state:           %s\n", h.State)
	fmt.Printf("vectors:         %d\n", h.VectorCount)
	fmt.Printf("tombstone ratio: %.4f\n", h.TombstoneRatio)
	fmt.Printf("wal enabled:     %t\n", h.WALEnabled)
	if h.State != "ready" && h.State != "indexing" && h.State != "compacting" {
		os.Exit(1)
	}
}

func parseVector(s string) ([]float32, error) {
	var v []float64
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out, nil
}

func formatVector(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	if len(v) > 10 {
		return fmt.Sprintf("[%.4f, %.4f, ... ] (dim=%d)", v[0], v[1], len(v))
	}
	elems := make([]string, len(v))
	for i, f := range v {
		elems[i] = fmt.Sprintf("%.4f", f)
	}
	return "[" + strings.Join(elems, ", ") + "]"
}

func showUsage() {
	fmt.Println(`vectorizer-cli - administrative client for a collection's WAL directory

Usage:
  vectorizer-cli <command> [options]

Commands:
  insert   Insert a vector with payload
  search   Search for similar vectors
  delete   Delete a vector by id
  get      Fetch a single vector and its payload
  stats    Show collection counters
  health   Show collection health and exit non-zero if not serving
  version  Show version
  help     Show this help message

Every command requires -wal-dir pointing at the collection's WAL
directory. The WAL does not record -dimension or -metric, so pass the
same values on every command run against a directory.

Examples:

  vectorizer-cli insert -wal-dir ./data/default -dimension 3 \
    -id doc-1 -vector '[0.1, 0.2, 0.3]' -payload '{"title":"hello"}'

  vectorizer-cli search -wal-dir ./data/default -dimension 3 \
    -query '[0.1, 0.2, 0.3]' -k 5

  vectorizer-cli health -wal-dir ./data/default -dimension 3`)
}
