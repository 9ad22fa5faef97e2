package datasource

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/sgv/pkg/debug"
	"github.com/vanderheijden86/sgv/pkg/metrics"
	"github.com/vanderheijden86/sgv/pkg/model"
)

// recordFields maps a source column name to the Record field it fills.
var recordFields = map[string]func(*model.Record, string){
	"subgraph_id":         func(r *model.Record, v string) { r.SubgraphID = v },
	"iteration":           func(r *model.Record, v string) { r.Iteration = v },
	"cell_type":           func(r *model.Record, v string) { r.CellType = v },
	"cluster":             func(r *model.Record, v string) { r.Cluster = NormalizeCluster(v) },
	"module":              func(r *model.Record, v string) { r.Module = v },
	"term_id":             func(r *model.Record, v string) { r.TermID = v },
	"term_name":           func(r *model.Record, v string) { r.TermName = v },
	"p_value":             func(r *model.Record, v string) { r.PValue = v },
	"intersection":        func(r *model.Record, v string) { r.Intersection = v },
	"length_intersection": func(r *model.Record, v string) { r.LengthIntersection = v },
	"source":              func(r *model.Record, v string) { r.Source = v },
	"subgraph_size":       func(r *model.Record, v string) { r.SubgraphSize = v },
	"IC":                  func(r *model.Record, v string) { r.IC = v },
}

// LoadAnnotations reads annotation records from a CSV file or, when the
// name ends in .json, a JSON array of record objects. A missing file is an
// error; an empty file yields an empty dataset.
func LoadAnnotations(path string) (*model.Dataset, error) {
	defer metrics.Timer(metrics.AnnotationLoad)()
	start := time.Now()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening annotations: %w", err)
	}
	defer f.Close()

	var records []model.Record
	if strings.EqualFold(filepath.Ext(path), ".json") {
		records, err = ParseAnnotationsJSON(f)
	} else {
		records, err = ParseAnnotationsCSV(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	debug.LogIf(len(records) == 0, "annotations file %s is empty; continuing with no records", path)
	debug.LogTiming("datasource.LoadAnnotations "+filepath.Base(path), time.Since(start))
	return model.NewDataset(records), nil
}

// ParseAnnotationsCSV reads records from CSV with a header row. Unknown
// columns are ignored.
func ParseAnnotationsCSV(r io.Reader) ([]model.Record, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	setters := make([]func(*model.Record, string), len(header))
	for i, h := range header {
		setters[i] = recordFields[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))]
	}

	var records []model.Record
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var rec model.Record
		for i, v := range row {
			if i < len(setters) && setters[i] != nil {
				setters[i](&rec, strings.TrimSpace(v))
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// ParseAnnotationsJSON reads a JSON array of objects keyed by column name,
// the shape a records-oriented data frame dump produces. Numbers, strings
// and nulls are all accepted.
func ParseAnnotationsJSON(r io.Reader) ([]model.Record, error) {
	var raw []map[string]any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding records: %w", err)
	}
	records := make([]model.Record, 0, len(raw))
	for _, obj := range raw {
		var rec model.Record
		for k, v := range obj {
			if set := recordFields[k]; set != nil {
				set(&rec, jsonScalar(v))
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func jsonScalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if math.IsInf(x, 1) {
			return "inf"
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
