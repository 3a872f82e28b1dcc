package prayer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// Source loads raw location data.
type Source interface {
	LoadYearTable(ctx context.Context, locationID int) ([]DailyPrayerTimes, error)
	LoadIndex(ctx context.Context) ([]District, error)
}

// FileSource reads index.json and <id>.json from a directory.
type FileSource struct {
	Dir string
}

func NewFileSource(dir string) *FileSource { return &FileSource{Dir: dir} }

func (s *FileSource) LoadIndex(ctx context.Context) ([]District, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(s.Dir, "index.json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("index: %w", ErrNotFound)
		}
		return nil, err
	}
	var out []District
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("index.json: %w", err)
	}
	return out, nil
}

func (s *FileSource) LoadYearTable(ctx context.Context, locationID int) ([]DailyPrayerTimes, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(s.Dir, strconv.Itoa(locationID)+".json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("location %d: %w", locationID, ErrNotFound)
		}
		return nil, err
	}
	days, err := decodeYearTable(b)
	if err != nil {
		return nil, &DataFormatError{LocationID: locationID, Err: err}
	}
	return days, nil
}

// decodeYearTable accepts either a bare array or an object wrapping it in
// "prayer_times" or "data".
func decodeYearTable(b []byte) ([]DailyPrayerTimes, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, errors.New("empty file")
	}
	if b[0] == '[' {
		var days []DailyPrayerTimes
		if err := json.Unmarshal(b, &days); err != nil {
			return nil, err
		}
		return days, nil
	}
	var wrapped struct {
		PrayerTimes []DailyPrayerTimes `json:"prayer_times"`
		Data        []DailyPrayerTimes `json:"data"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return nil, err
	}
	switch {
	case wrapped.PrayerTimes != nil:
		return wrapped.PrayerTimes, nil
	case wrapped.Data != nil:
		return wrapped.Data, nil
	default:
		return nil, errors.New("no prayer_times or data array")
	}
}
