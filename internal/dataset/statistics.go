package dataset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// Statistics is the sidecar written next to every split directory.
type Statistics struct {
	TilesHeightWidth          int `json:"tiles_height_width"`
	NumberOfSourcesPerExample int `json:"number_of_sources_per_example"`
}

// LoadStatistics reads <directory>.json, e.g. training.json for the training split.
func LoadStatistics(directory string) (Statistics, error) {
	var path = filepath.Clean(directory) + ".json"
	var result Statistics
	var data, err = os.ReadFile(path)
	if err != nil {
		return result, errors.Wrap(err, "statistics")
	}
	err = json.Unmarshal(data, &result)
	if err != nil {
		return result, errors.Wrapf(err, "statistics %v", path)
	}
	if result.TilesHeightWidth <= 0 || result.NumberOfSourcesPerExample <= 0 {
		return result, errors.Errorf("statistics %v: tiles_height_width and number_of_sources_per_example are required", path)
	}
	return result, nil
}

func (s Statistics) Save(directory string) error {
	var data, err = json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Clean(directory)+".json", data, 0o644)
}

// ListFiles returns the regular files of a split directory in name order.
func ListFiles(directory string) ([]string, error) {
	dirs, err := os.ReadDir(directory)
	if err != nil {
		return nil, err
	}
	var result []string
	for _, de := range dirs {
		if !de.IsDir() {
			result = append(result, filepath.Join(directory, de.Name()))
		}
	}
	sort.Strings(result)
	if len(result) == 0 {
		return nil, errors.Errorf("no record files in %v", directory)
	}
	return result, nil
}
