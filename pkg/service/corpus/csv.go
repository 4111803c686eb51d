package corpus

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
)

// Column names of the scraped review CSVs
const (
	colName    = "name"
	colCountry = "country"
	colDate    = "date"
	colScore   = "review_score"
	colHeader  = "review_header"
	colBody    = "review_body"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// GroupFromFilename derives the group tag from a CSV file name, e.g. "Digital Ocean.csv" -> "digital_ocean"
func GroupFromFilename(name string) (types.GroupTag, error) {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	stem = strings.ToLower(strings.TrimSpace(stem))
	stem = strings.Join(strings.Fields(stem), "_")

	group := types.GroupTag(stem)
	if err := group.Validate(); err != nil {
		return "", goerr.Wrap(err, "file name is not a valid group tag", goerr.V("file", name))
	}
	return group, nil
}

// LoadCSV reads records of one group. Record ids are "{group}_{row}" with 0-based data rows.
// Missing or non-numeric scores load as rating 0 and are rejected later by Record.Validate.
func LoadCSV(r io.Reader, group types.GroupTag) ([]*model.Record, error) {
	if err := group.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid group")
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read CSV header", goerr.V("group", group))
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, required := range []string{colScore, colBody} {
		if _, ok := index[required]; !ok {
			return nil, goerr.New("CSV is missing a required column", goerr.V("column", required), goerr.V("group", group))
		}
	}

	field := func(row []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []*model.Record
	for rowNum := 0; ; rowNum++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read CSV row", goerr.V("group", group), goerr.V("row", rowNum))
		}

		rating, _ := strconv.Atoi(field(row, colScore))
		records = append(records, &model.Record{
			ID:        string(group) + "_" + strconv.Itoa(rowNum),
			Group:     group,
			Rating:    rating,
			Timestamp: parseDate(field(row, colDate)),
			Title:     field(row, colHeader),
			Body:      field(row, colBody),
			Author:    field(row, colName),
			Country:   field(row, colCountry),
		})
	}

	return records, nil
}

// parseDate accepts the formats seen in scraped data; unknown formats give the zero time
func parseDate(s string) time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// LoadCSVDir reads every *.csv in dir in file name order, one group per file
func LoadCSVDir(dir string) ([]*model.Record, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list CSV files", goerr.V("dir", dir))
	}
	if len(paths) == 0 {
		return nil, goerr.New("no CSV files found", goerr.V("dir", dir))
	}
	sort.Strings(paths)

	var records []*model.Record
	for _, path := range paths {
		group, err := GroupFromFilename(path)
		if err != nil {
			return nil, err
		}

		loaded, err := loadCSVFile(path, group)
		if err != nil {
			return nil, err
		}
		records = append(records, loaded...)
	}
	return records, nil
}

func loadCSVFile(path string, group types.GroupTag) ([]*model.Record, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open CSV file", goerr.V("path", path))
	}
	defer func() { _ = f.Close() }()

	return LoadCSV(f, group)
}
