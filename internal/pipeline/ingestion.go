package pipeline

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/SamMebarek/mlopstest/internal/config"
	"github.com/SamMebarek/mlopstest/internal/dataset"
	"github.com/SamMebarek/mlopstest/internal/datasource"
)

// IngestionResult describes the persisted raw file
type IngestionResult struct {
	Path string
	Rows int
	MD5  string
}

// RunIngestion fetches the source CSV (http(s) URL or local path), checks
// the minimal schema and stores it under the raw data directory.
func RunIngestion(ctx context.Context, cfg config.Ingestion, deps Deps) (IngestionResult, error) {
	logger := deps.stageLogger(StageIngestion)

	src := cfg.SourceURL
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		tmp := filepath.Join(cfg.RawDataDir, ".download-"+filepath.Base(cfg.OutputPath))
		if err := datasource.Download(ctx, deps.HTTPClient, src, tmp, 0); err != nil {
			return IngestionResult{}, err
		}
		defer os.Remove(tmp)
		logger.Info().Str("url", cfg.SourceURL).Msg("downloaded source CSV")
		src = tmp
	}

	t, err := dataset.ReadTableFile(src)
	if err != nil {
		return IngestionResult{}, fmt.Errorf("failed to read source %s: %w", cfg.SourceURL, err)
	}
	if err := ValidateRaw(t); err != nil {
		return IngestionResult{}, fmt.Errorf("schema validation failed: %w", err)
	}

	if err := t.WriteFile(cfg.OutputPath); err != nil {
		return IngestionResult{}, fmt.Errorf("failed to persist ingested data: %w", err)
	}
	sum, err := fileMD5(cfg.OutputPath)
	if err != nil {
		return IngestionResult{}, err
	}

	res := IngestionResult{Path: cfg.OutputPath, Rows: len(t.Records), MD5: sum}
	logger.Info().Str("path", res.Path).Int("rows", res.Rows).Str("md5", res.MD5).Msg("ingested data saved")
	return res, nil
}

// ValidateRaw checks that the table is non-empty, carries SKU and price
// columns, and that every non-empty price cell is numeric.
func ValidateRaw(t *dataset.Table) error {
	if len(t.Records) == 0 {
		return errors.New("no data rows")
	}

	var missing []string
	for _, c := range []string{dataset.ColSKU, dataset.ColPrice} {
		if t.Index(c) < 0 {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing columns %v", missing)
	}

	priceIdx := t.Index(dataset.ColPrice)
	for n, rec := range t.Records {
		v := ""
		if priceIdx < len(rec) {
			v = strings.TrimSpace(rec[priceIdx])
		}
		if v == "" {
			continue
		}
		if _, err := dataset.ParseFloat(v); err != nil {
			return fmt.Errorf("line %d: price %q is not numeric", n+2, v)
		}
	}
	return nil
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
