// Package datasets 提供内置数据集以及 CSV 样本加载.
package datasets

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/wyfcoding/forest/algorithm/matrix"
	"github.com/wyfcoding/forest/xerrors"
)

// CSVOptions 控制 CSV 的解析方式.
type CSVOptions struct {
	// Comma 字段分隔符，零值表示逗号.
	Comma rune
	// Header 首行为列名时跳过.
	Header bool
	// Target 目标列下标，负数表示从末尾倒数 (-1 为最后一列).
	Target int
	// NoTarget 所有列都是特征，例如预测输入.
	NoTarget bool
}

// DefaultCSVOptions 带表头、最后一列为目标.
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{Comma: ',', Header: true, Target: -1}
}

// ReadCSV 读取稠密特征矩阵与目标列.
// NoTarget 时 y 为 nil.
func ReadCSV(r io.Reader, opts CSVOptions) (*matrix.Dense, *matrix.Dense, error) {
	var (
		data   []float64
		target []float64
		cols   = -1
	)
	err := readRecords(r, opts, func(features, y []float64) error {
		if cols < 0 {
			cols = len(features)
		}
		data = append(data, features...)
		if !opts.NoTarget {
			target = append(target, y[0])
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if cols < 0 {
		return nil, nil, xerrors.Wrap(xerrors.ErrEmptyData, xerrors.ErrInvalidArg, "csv has no data rows")
	}
	X, err := matrix.NewDense(len(data)/max(cols, 1), cols, data)
	if err != nil {
		return nil, nil, err
	}
	if opts.NoTarget {
		return X, nil, nil
	}
	return X, matrix.FromColumn(target), nil
}

// ReadSparseCSV 与 ReadCSV 相同，但特征按行压缩存储，零值不占空间.
func ReadSparseCSV(r io.Reader, opts CSVOptions) (*matrix.SparseRow, *matrix.Dense, error) {
	var (
		X      *matrix.SparseRow
		target []float64
	)
	err := readRecords(r, opts, func(features, y []float64) error {
		if X == nil {
			X = matrix.NewSparseRow(len(features))
		}
		var (
			idx  []int
			vals []float64
		)
		for j, v := range features {
			if v != 0 {
				idx = append(idx, j)
				vals = append(vals, v)
			}
		}
		if err := X.AppendRow(idx, vals); err != nil {
			return err
		}
		if !opts.NoTarget {
			target = append(target, y[0])
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if X == nil {
		return nil, nil, xerrors.Wrap(xerrors.ErrEmptyData, xerrors.ErrInvalidArg, "csv has no data rows")
	}
	if opts.NoTarget {
		return X, nil, nil
	}
	return X, matrix.FromColumn(target), nil
}

func readRecords(r io.Reader, opts CSVOptions, row func(features, y []float64) error) error {
	cr := csv.NewReader(r)
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	width := -1
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return xerrors.Wrap(xerrors.ErrInvalidInput, xerrors.ErrInvalidArg, "read csv").WithDetail("%v", err)
		}
		if line == 1 && opts.Header {
			continue
		}
		if width < 0 {
			width = len(rec)
		}
		if len(rec) != width {
			return xerrors.Wrap(xerrors.ErrDimMismatch, xerrors.ErrInvalidArg, "ragged csv row").
				WithDetail("line %d has %d fields, expected %d", line, len(rec), width)
		}

		values := make([]float64, len(rec))
		for j, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return xerrors.Wrap(xerrors.ErrInvalidInput, xerrors.ErrInvalidArg, "non-numeric csv field").
					WithDetail("line %d column %d: %q", line, j, field)
			}
			values[j] = v
		}

		if opts.NoTarget {
			if err := row(values, nil); err != nil {
				return err
			}
			continue
		}
		t := opts.Target
		if t < 0 {
			t += len(values)
		}
		if t < 0 || t >= len(values) || len(values) < 2 {
			return xerrors.Wrap(xerrors.ErrInvalidConfig, xerrors.ErrInvalidArg, "target column out of range").
				WithDetail("target=%d fields=%d", opts.Target, len(values))
		}
		features := make([]float64, 0, len(values)-1)
		features = append(features, values[:t]...)
		features = append(features, values[t+1:]...)
		if err := row(features, values[t:t+1]); err != nil {
			return err
		}
	}
}
