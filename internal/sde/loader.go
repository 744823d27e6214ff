// Package sde reads the static item catalogue (the invTypes dump).
package sde

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"lp-trader/internal/engine"
	"lp-trader/internal/logger"
)

const cacheFile = "invTypes.csv"

// Fetcher downloads a URL into memory. *fuzzwork.Client implements it.
type Fetcher interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// droppedColumns never reach the catalogue; only typeID and typeName are kept.
var droppedColumns = map[string]bool{
	"description": true, "mass": true, "volume": true, "capacity": true,
	"portionSize": true, "raceID": true, "basePrice": true, "published": true,
	"marketGroupID": true, "iconID": true, "soundID": true, "graphicID": true,
}

// Load downloads the invTypes dump, keeps a copy under dataDir, and parses it.
// When the download fails a cached copy is used if one exists.
func Load(ctx context.Context, dataDir, url string, fetch Fetcher) ([]engine.Item, error) {
	path := filepath.Join(dataDir, cacheFile)

	logger.Loading("SDE", "Downloading invTypes...")
	start := time.Now()
	body, err := fetch.Download(ctx, url)
	if err != nil {
		logger.Done("failed")
		cached, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil, fmt.Errorf("download static data: %w", err)
		}
		logger.Warn("SDE", fmt.Sprintf("Download failed (%v), using cached %s", err, path))
		body = cached
	} else {
		logger.Done(fmt.Sprintf("%d KB in %s", len(body)/1024, time.Since(start).Round(time.Millisecond)))
		if dataDir != "" {
			if merr := os.MkdirAll(dataDir, 0755); merr != nil {
				logger.Warn("SDE", "Could not create data dir: "+merr.Error())
			} else if werr := os.WriteFile(path, body, 0644); werr != nil {
				logger.Warn("SDE", "Could not cache static data: "+werr.Error())
			}
		}
	}

	items, err := Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	logger.Section("Static Data")
	logger.Stats("Published types", len(items))
	return items, nil
}

// Parse reads an invTypes CSV and returns the published types as id/name pairs.
// Rows with an unparseable id or no name are skipped.
func Parse(r io.Reader) ([]engine.Item, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")
	log.Printf("[SDE] keeping columns %v", KeptColumns(header))
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	idCol, okID := col["typeID"]
	nameCol, okName := col["typeName"]
	if !okID || !okName {
		return nil, errors.New("invTypes: missing typeID or typeName column")
	}
	pubCol, hasPublished := col["published"]

	var items []engine.Item
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if idCol >= len(rec) || nameCol >= len(rec) {
			continue
		}
		if hasPublished && (pubCol >= len(rec) || !isPublished(rec[pubCol])) {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(rec[idCol]), 10, 32)
		if err != nil {
			continue
		}
		name := strings.TrimSpace(rec[nameCol])
		if name == "" || name == "None" {
			continue
		}
		items = append(items, engine.Item{TypeID: int32(id), Name: name})
	}
	return items, nil
}

// KeptColumns returns the header columns that survive the column filter.
func KeptColumns(header []string) []string {
	var out []string
	for _, h := range header {
		if !droppedColumns[h] {
			out = append(out, h)
		}
	}
	return out
}

func isPublished(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true":
		return true
	}
	return false
}
