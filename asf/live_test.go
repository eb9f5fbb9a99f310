//go:build live

package asf_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/go-sarslide/asf"
	"github.com/example/go-sarslide/asf/search"
)

func TestLiveSearchAndDownload(t *testing.T) {
	username := firstNonEmpty(os.Getenv("ASF_EARTHDATA_USERNAME"), os.Getenv("ASF_USERNAME"))
	if username == "" {
		t.Skip("ASF_EARTHDATA_USERNAME/ASF_USERNAME not set; skipping live download test")
	}
	password := firstNonEmpty(os.Getenv("ASF_EARTHDATA_PASSWORD"), os.Getenv("ASF_PASSWORD"))
	if password == "" {
		t.Skip("ASF_EARTHDATA_PASSWORD/ASF_PASSWORD not set; skipping live download test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	client, err := asf.NewClient(asf.WithBasicAuth(username, password))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	params := search.From(search.Sentinel1(search.ProcessingLevelRTC, "VH")).
		Dataset(search.DatasetOperaS1).
		IntersectsWith("POLYGON((132.64 34.38,132.64 34.23,132.83 34.23,132.83 34.38,132.64 34.38))").
		MaxResults(1).
		Build()

	iter, err := client.Search(ctx, params)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !iter.Next(ctx) {
		if err := iter.Err(); err != nil {
			t.Fatalf("iteration error: %v", err)
		}
		t.Fatal("no products returned from live search")
	}
	product := iter.Product()
	vh := product.FilesWithSuffix("_VH.tif")
	if len(vh) == 0 {
		t.Fatalf("product has no VH GeoTIFF: %+v", product.Files)
	}
	product.Files = vh

	dir := t.TempDir()
	paths, err := client.DownloadFiles(ctx, product, dir)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("expected 1 file, got %v", paths)
	}
	info, err := os.Stat(filepath.Join(dir, filepath.Base(paths[0])))
	if err != nil {
		t.Fatalf("stat downloaded file: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("downloaded file is empty")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
