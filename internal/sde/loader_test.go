package sde

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const sampleCSV = `typeID,groupID,typeName,description,mass,volume,capacity,portionSize,raceID,basePrice,published,marketGroupID,iconID,soundID,graphicID
34,18,Tritanium,"The main building block, used everywhere",0,0.01,0,1,None,2,1,1857,22,None,None
35,18,Pyerite,Soft metal,0,0.01,0,1,None,8,1,1857,400,None,None
99,1,Unpublished Thing,,0,1,0,1,None,0,0,None,None,None,None
abc,1,Broken Row,,0,1,0,1,None,0,1,None,None,None,None
17713,12,"Imperial Navy ""Special"" Crate",,0,1,0,1,None,0,1,None,None,None,None
`

func TestParse_PublishedOnlyIDAndName(t *testing.T) {
	items, err := Parse(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("len = %d, want 3: %+v", len(items), items)
	}
	if items[0].TypeID != 34 || items[0].Name != "Tritanium" {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[2].TypeID != 17713 || items[2].Name != `Imperial Navy "Special" Crate` {
		t.Errorf("items[2] = %+v", items[2])
	}
	for _, it := range items {
		if it.TypeID == 99 {
			t.Error("unpublished type kept")
		}
		if !it.UpdatedAt.IsZero() || it.Price.Sell != 0 {
			t.Errorf("parsed item carries more than id/name: %+v", it)
		}
	}
}

func TestParse_MissingColumns(t *testing.T) {
	if _, err := Parse(strings.NewReader("foo,bar\n1,2\n")); err == nil {
		t.Fatal("expected error when typeID/typeName are absent")
	}
}

func TestKeptColumns(t *testing.T) {
	header := strings.Split(strings.SplitN(sampleCSV, "\n", 2)[0], ",")
	got := KeptColumns(header)
	want := []string{"typeID", "groupID", "typeName"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("KeptColumns = %v, want %v", got, want)
	}
}

type stubFetcher struct {
	body []byte
	err  error
}

func (s stubFetcher) Download(ctx context.Context, url string) ([]byte, error) {
	return s.body, s.err
}

func TestLoad_CachesAndFallsBack(t *testing.T) {
	dir := t.TempDir()
	items, err := Load(context.Background(), dir, "http://example/invTypes.csv", stubFetcher{body: []byte(sampleCSV)})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("len = %d, want 3", len(items))
	}
	if _, err := os.Stat(filepath.Join(dir, cacheFile)); err != nil {
		t.Fatalf("cache file not written: %v", err)
	}

	items, err = Load(context.Background(), dir, "http://example/invTypes.csv", stubFetcher{err: errors.New("offline")})
	if err != nil {
		t.Fatalf("Load with cache: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("cached len = %d, want 3", len(items))
	}
}

func TestLoad_NoCacheNoNetwork(t *testing.T) {
	_, err := Load(context.Background(), t.TempDir(), "http://example", stubFetcher{err: errors.New("offline")})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestLoad_UncreatableDataDirStillParses(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	dataDir := filepath.Join(blocker, "data")

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w
	items, loadErr := Load(context.Background(), dataDir, "http://example/invTypes.csv", stubFetcher{body: []byte(sampleCSV)})
	w.Close()
	os.Stdout = old
	out, _ := io.ReadAll(r)

	if loadErr != nil {
		t.Fatalf("Load: %v", loadErr)
	}
	if len(items) != 3 {
		t.Errorf("len = %d, want 3", len(items))
	}
	if !strings.Contains(string(out), "Could not create data dir") {
		t.Errorf("missing data dir warning in %q", out)
	}
}
