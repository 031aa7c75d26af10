package core

import (
	"bytes"
	"encoding/json"
	"sort"
)

// DatasetColumns returns the column order for ds: each listed column that
// occurs in some record, then the remaining record keys in sorted order.
// An empty dataset keeps columns as given.
func DatasetColumns(columns []string, ds []RawRecord) []string {
	if len(ds) == 0 {
		return columns
	}

	seen := make(map[string]bool)
	for _, rec := range ds {
		for k := range rec {
			seen[k] = true
		}
	}

	out := make([]string, 0, len(seen))
	for _, c := range columns {
		if seen[c] {
			out = append(out, c)
			delete(seen, c)
		}
	}
	extra := make([]string, 0, len(seen))
	for k := range seen {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// Rows returns the dataset as a header row followed by one row per record,
// cells in column order. Missing cells are empty.
func (c *Campaign) Rows() [][]string {
	header := DatasetColumns(c.Columns, c.Dataset)
	rows := make([][]string, 0, len(c.Dataset)+1)
	rows = append(rows, header)
	for _, rec := range c.Dataset {
		row := make([]string, len(header))
		for i, col := range header {
			row[i] = rec[col]
		}
		rows = append(rows, row)
	}
	return rows
}

// MarshalJSON writes dataset records with their keys in column order.
func (c Campaign) MarshalJSON() ([]byte, error) {
	type plain Campaign
	out := struct {
		plain
		Dataset []orderedRecord `json:"data,omitempty"`
	}{plain: plain(c)}

	if len(c.Dataset) > 0 {
		order := DatasetColumns(c.Columns, c.Dataset)
		out.Dataset = make([]orderedRecord, len(c.Dataset))
		for i, rec := range c.Dataset {
			out.Dataset[i] = orderedRecord{order: order, rec: rec}
		}
	}
	return json.Marshal(out)
}

type orderedRecord struct {
	order []string
	rec   RawRecord
}

func (o orderedRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, k := range o.order {
		v, ok := o.rec[k]
		if !ok {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false

		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
