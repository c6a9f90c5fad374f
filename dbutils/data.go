package dbutils

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"github.com/fioncat/dbutils/osutils"
	"github.com/fioncat/dbutils/types"
	"github.com/spf13/cast"
)

// distinctSketchBits is the bitmap size of the linear counting estimate.
const distinctSketchBits = 1 << 14

// Table is a column oriented view of tabular data. Every row holds one
// value per column, nil or "" is a missing value.
type Table struct {
	Columns []string

	Rows [][]any
}

type ColumnSummary struct {
	Name string `json:"name"`

	Count    int64 `json:"count"`
	Missing  int64 `json:"missing"`
	Distinct int64 `json:"distinct"`

	// Numeric is set when every present value converts to a number, the
	// statistics below are only meaningful then.
	Numeric bool    `json:"numeric"`
	Min     float64 `json:"min,omitempty"`
	Max     float64 `json:"max,omitempty"`
	Mean    float64 `json:"mean,omitempty"`
	StdDev  float64 `json:"stddev,omitempty"`
}

type Summary struct {
	Rows int64 `json:"rows"`

	Precise bool `json:"precise"`

	Columns []*ColumnSummary `json:"columns"`
}

// Data is the data group.
type Data struct {
	u *DBUtils
}

func (d *Data) Help(method string) string {
	return groupHelp("data", method)
}

// Summarize computes descriptive statistics per column. Without precise the
// distinct counts are estimated.
func (d *Data) Summarize(ctx context.Context, table *Table, precise bool) (summary *Summary, err error) {
	defer observe("data", "summarize", &err)

	if table == nil || len(table.Columns) == 0 {
		return nil, fmt.Errorf("%w: table has no columns", types.ErrInvalidArgument)
	}
	for i, row := range table.Rows {
		if len(row) != len(table.Columns) {
			return nil, fmt.Errorf("%w: row %d has %d values, expect %d", types.ErrInvalidArgument, i, len(row), len(table.Columns))
		}
	}

	summary = &Summary{
		Rows:    int64(len(table.Rows)),
		Precise: precise,
		Columns: make([]*ColumnSummary, len(table.Columns)),
	}
	for col, name := range table.Columns {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		summary.Columns[col] = summarizeColumn(name, table.Rows, col, precise)
	}
	d.u.logger.Debugf("Summarize %d rows, %d columns, precise %v", summary.Rows, len(summary.Columns), precise)
	return summary, nil
}

func summarizeColumn(name string, rows [][]any, col int, precise bool) *ColumnSummary {
	s := &ColumnSummary{Name: name, Numeric: true}

	var exact map[string]struct{}
	var sketch []uint64
	if precise {
		exact = make(map[string]struct{})
	} else {
		sketch = make([]uint64, distinctSketchBits/64)
	}

	// Welford's online algorithm.
	var mean, m2 float64
	for _, row := range rows {
		value := row[col]
		if isMissing(value) {
			s.Missing++
			continue
		}
		s.Count++

		key := cast.ToString(value)
		if precise {
			exact[key] = struct{}{}
		} else {
			bit := xxhash.Sum64String(key) % distinctSketchBits
			sketch[bit/64] |= 1 << (bit % 64)
		}

		if !s.Numeric {
			continue
		}
		num, ok := toNumber(value)
		if !ok {
			s.Numeric = false
			continue
		}
		if s.Count == 1 {
			s.Min, s.Max = num, num
		}
		s.Min = math.Min(s.Min, num)
		s.Max = math.Max(s.Max, num)
		delta := num - mean
		mean += delta / float64(s.Count)
		m2 += delta * (num - mean)
	}

	if precise {
		s.Distinct = int64(len(exact))
	} else {
		s.Distinct = estimateDistinct(sketch, s.Count)
	}

	if s.Count == 0 || !s.Numeric {
		s.Numeric = false
		s.Min, s.Max = 0, 0
		return s
	}
	s.Mean = mean
	if s.Count > 1 {
		s.StdDev = math.Sqrt(m2 / float64(s.Count-1))
	}
	return s
}

// estimateDistinct is the linear counting estimate m*ln(m/V), V being the
// number of zero bits.
func estimateDistinct(sketch []uint64, count int64) int64 {
	var zeros int
	for _, word := range sketch {
		for i := 0; i < 64; i++ {
			if word&(1<<i) == 0 {
				zeros++
			}
		}
	}
	if zeros == 0 {
		return count
	}
	m := float64(distinctSketchBits)
	estimate := int64(math.Round(m * math.Log(m/float64(zeros))))
	return min(estimate, count)
}

func isMissing(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	}
	return false
}

func toNumber(value any) (float64, bool) {
	if _, ok := value.(bool); ok {
		return 0, false
	}
	num, err := cast.ToFloat64E(value)
	if err != nil || math.IsNaN(num) {
		return 0, false
	}
	return num, true
}

func (s *Summary) String() string {
	titles := []string{"Column", "Count", "Missing", "Distinct", "Min", "Max", "Mean", "StdDev"}
	rows := make([][]string, len(s.Columns))
	for i, c := range s.Columns {
		distinct := humanize.Comma(c.Distinct)
		if !s.Precise {
			distinct = "~" + distinct
		}
		row := []string{c.Name, humanize.Comma(c.Count), humanize.Comma(c.Missing), distinct, "", "", "", ""}
		if c.Numeric {
			row[4] = formatFloat(c.Min)
			row[5] = formatFloat(c.Max)
			row[6] = formatFloat(c.Mean)
			row[7] = formatFloat(c.StdDev)
		}
		rows[i] = row
	}
	return osutils.RenderTable(titles, rows)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}
