// Command chado-export converts an experiment description document into the
// macro-based Chado XML serialization of its experiment graph.
//
// Usage: chado-export <description file> [output]
//
// The output argument may be a file path, an s3://bucket/key URL, or "-"
// (default) for standard output. Diagnostics go to standard error, never into
// the document.
package main

import (
	"bytes"
	"context"
	"expvar"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chadograph/internal/blob"
	"chadograph/internal/cache"
	"chadograph/internal/chadoxml"
	"chadograph/internal/infra/payload"
	"chadograph/internal/metrics"
	"chadograph/internal/pipeline"
	"chadograph/pkg/chado"
)

var exitFunc = os.Exit

func main() {
	log.SetFlags(0)
	log.SetPrefix("chado-export: ")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: chado-export <description file> [output]")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() < 1 || flag.NArg() > 2 {
		flag.Usage()
		exitFunc(2)
		return
	}
	output := ""
	if flag.NArg() == 2 {
		output = flag.Arg(1)
	}
	if err := run(context.Background(), flag.Arg(0), output); err != nil {
		log.Print(err)
		exitFunc(1)
	}
}

// multiRecorder fans observations out to every attached recorder.
type multiRecorder []cache.MetricsRecorder

func (m multiRecorder) Record(op string, duration time.Duration, outcome string) {
	for _, rec := range m {
		rec.Record(op, duration, outcome)
	}
}

// Recorders publish under process-global names, so they are set up exactly
// once even when run is invoked repeatedly in tests.
var (
	metricsOnce     sync.Once
	cacheRecorders  multiRecorder
	metricsSetupErr error
)

func setupMetrics() {
	cacheRecorders = multiRecorder{metrics.NewExpvarRecorder("object_cache")}
	listen := os.Getenv("CHADOGRAPH_METRICS_LISTEN")
	if listen == "" {
		return
	}
	prom, err := metrics.NewPrometheusRecorder(nil)
	if err != nil {
		metricsSetupErr = fmt.Errorf("register prometheus collectors: %w", err)
		return
	}
	cacheRecorders = append(cacheRecorders, prom)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/vars", expvar.Handler())
	go func() {
		if err := http.ListenAndServe(listen, mux); err != nil {
			log.Printf("metrics listener: %v", err)
		}
	}()
}

func run(ctx context.Context, input, output string) error {
	metricsOnce.Do(setupMetrics)
	if metricsSetupErr != nil {
		return metricsSetupErr
	}
	recorders := cacheRecorders

	store, err := payload.Open()
	if err != nil {
		return fmt.Errorf("open payload store: %w", err)
	}
	c := cache.New(store, cache.WithMetrics(recorders))
	defer func() {
		if err := c.Destroy(); err != nil {
			log.Printf("destroy cache: %v", err)
		}
	}()
	if err := chado.RegisterCodecs(c); err != nil {
		return fmt.Errorf("register codecs: %w", err)
	}

	run, err := pipeline.ParseFile(input, c)
	if err != nil {
		return fmt.Errorf("parse %s: %w", input, err)
	}
	report, err := pipeline.NewDefaultEngine().Validate(ctx, run)
	if err != nil {
		return fmt.Errorf("validate %s: %w", input, err)
	}
	for _, d := range report.Diagnostics {
		log.Printf("%s [%s] %s/%s: %s", d.Validator, d.Severity, d.Entity, d.EntityID, d.Message)
	}
	if report.HasBlocking() {
		return fmt.Errorf("validation blocked export of %s", input)
	}

	if os.Getenv("CHADOGRAPH_EAGER_COMPRESS") == "1" {
		if err := c.CompressAll(); err != nil {
			return fmt.Errorf("compress graph: %w", err)
		}
	}
	return writeDocument(ctx, c, run.Experiment, output)
}

// writeDocument resolves the destination and serializes the graph. File and
// S3 destinations buffer the whole document first: a failed serialization
// never replaces the previous document, and the filesystem store renames the
// finished file into place atomically.
func writeDocument(ctx context.Context, c *cache.Cache, root *cache.Handle, output string) error {
	if output == "" || output == "-" {
		return chadoxml.Write(os.Stdout, c, root)
	}

	var buf bytes.Buffer
	if err := chadoxml.Write(&buf, c, root); err != nil {
		return err
	}
	store, key, err := openDestination(ctx, output)
	if err != nil {
		return err
	}
	opts := blob.PutOptions{ContentType: "application/xml"}
	if _, err := store.Put(ctx, key, &buf, opts); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

// openDestination selects the blob store and key for the output argument.
// s3:// URLs name their bucket explicitly; everything else goes through the
// environment-selected driver, defaulting to a filesystem store rooted at
// the output's directory so plain paths keep working with no configuration.
func openDestination(ctx context.Context, output string) (blob.Store, string, error) {
	if strings.HasPrefix(output, "s3://") {
		rest := strings.TrimPrefix(output, "s3://")
		bucket, key, ok := strings.Cut(rest, "/")
		if !ok || bucket == "" || key == "" {
			return nil, "", fmt.Errorf("invalid s3 destination %q", output)
		}
		store, err := blob.OpenS3Bucket(ctx, bucket)
		if err != nil {
			return nil, "", fmt.Errorf("open s3 destination: %w", err)
		}
		return store, key, nil
	}
	if os.Getenv("CHADOGRAPH_BLOB_DRIVER") != "" {
		store, err := blob.Open(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("open destination: %w", err)
		}
		return store, output, nil
	}
	store, err := blob.NewFilesystem(filepath.Dir(output))
	if err != nil {
		return nil, "", fmt.Errorf("open destination directory: %w", err)
	}
	return store, filepath.Base(output), nil
}
