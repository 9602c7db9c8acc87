package feed

import (
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"envload/internal/core"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadCSV_Sequential(t *testing.T) {
	path := writeFile(t, "sensors.csv", "sensorId,zone\nTEMP-1001,north\nTEMP-1002,south\nTEMP-1003")

	f, err := Load("sensors", path, ModeSequential, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Len() != 3 || f.Name() != "sensors" {
		t.Fatalf("unexpected feed %s with %d rows", f.Name(), f.Len())
	}

	want := []string{"TEMP-1001", "TEMP-1002", "TEMP-1003", "TEMP-1001"}
	for i, id := range want {
		if row := f.Next(nil); row["sensorId"] != id {
			t.Errorf("row %d: got %v, want %s", i, row["sensorId"], id)
		}
	}
	// short records are padded
	f2, _ := Load("sensors", path, ModeSequential, "")
	f2.Next(nil)
	f2.Next(nil)
	if row := f2.Next(nil); row["zone"] != "" {
		t.Errorf("expected empty zone for a short record, got %v", row["zone"])
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "stations.json", `[{"id": 1, "name": "Quito", "lat": -0.18}]`)

	f, err := Load("stations", path, ModeSequential, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	row := f.Next(nil)
	if row["id"] != float64(1) || row["name"] != "Quito" || row["lat"] != -0.18 {
		t.Errorf("unexpected row %v", row)
	}
}

func TestLoad_RelativePath(t *testing.T) {
	path := writeFile(t, "data.csv", "col1\nvalue1")

	f, err := Load("test", "data.csv", ModeSequential, filepath.Dir(path))
	if err != nil {
		t.Fatalf("Load with relative path: %v", err)
	}
	if f.Len() != 1 {
		t.Errorf("Len() = %d, want 1", f.Len())
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name, file, content string
	}{
		{"header only", "empty.csv", "header"},
		{"unsupported", "data.xml", "<data/>"},
		{"not an array", "obj.json", `{"a": 1}`},
		{"empty array", "none.json", `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load("x", writeFile(t, tt.file, tt.content), ModeSequential, ""); err == nil {
				t.Error("expected an error")
			}
		})
	}
	if _, err := Load("x", "/nonexistent/file.csv", ModeSequential, ""); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestModeRandom_UsesCallerRand(t *testing.T) {
	rows := []map[string]any{{"v": "a"}, {"v": "b"}, {"v": "c"}, {"v": "d"}, {"v": "e"}}
	f := New("random", rows, ModeRandom)

	draw := func(seed int64) []any {
		rng := rand.New(rand.NewSource(seed))
		var out []any
		for i := 0; i < 20; i++ {
			out = append(out, f.Next(rng)["v"])
		}
		return out
	}
	first, second := draw(9), draw(9)
	seen := make(map[any]bool)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("same seed diverged at %d: %v vs %v", i, first, second)
		}
		seen[first[i]] = true
	}
	if len(seen) < 2 {
		t.Errorf("random mode returned only %d unique values", len(seen))
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeSequential, "sequential": ModeSequential, "RANDOM": ModeRandom} {
		if got, err := ParseMode(in); err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("shuffle"); err == nil {
		t.Error("expected an error for an unknown mode")
	}
}

func TestEmptyFeed(t *testing.T) {
	if New("empty", nil, ModeSequential).Next(nil) != nil {
		t.Error("Next() on an empty feed should return nil")
	}
}

func TestInject(t *testing.T) {
	feeds := Feeds{"sensors": New("sensors", []map[string]any{{"sensorId": "HUM-2001", "floor": 3}}, ModeSequential)}
	vars := core.NewVariables()
	feeds.Inject(vars, nil)

	if v, _ := vars.Get("data.sensors.sensorId"); v != "HUM-2001" {
		t.Errorf("data.sensors.sensorId = %v", v)
	}
	if v, _ := vars.Get("data.sensors.floor"); v != 3 {
		t.Errorf("data.sensors.floor = %v", v)
	}
}

func TestNext_ReturnsCopy(t *testing.T) {
	f := New("test", []map[string]any{{"key": "original"}}, ModeSequential)

	row := f.Next(nil)
	row["key"] = "mutated"
	row["new_key"] = "added"

	again := f.Next(nil)
	if again["key"] != "original" {
		t.Errorf("mutation affected the feed: got %v", again["key"])
	}
	if _, ok := again["new_key"]; ok {
		t.Error("added key leaked into the feed")
	}
}

func TestNext_Concurrent(t *testing.T) {
	f := New("test", []map[string]any{{"v": 1}, {"v": 2}, {"v": 3}}, ModeSequential)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if f.Next(nil) == nil {
					t.Error("Next() returned nil")
				}
			}
		}()
	}
	wg.Wait()
}
