/*
 *	Copyright 2025 The scinet Authors
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package data

import (
	"os"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
)

// FromFiles creates a Set from a train file and a test file of numeric
// columns, whitespace- or comma-separated, one example per line. Lines
// starting with '#' are skipped. colX and colY select the input and target
// columns by index.
func FromFiles(trainPath, testPath string, colX, colY []int, opts ...SetOption) (*Set, error) {
	if len(colX) == 0 || len(colY) == 0 {
		return nil, errors.New("at least one input and one target column must be selected")
	}
	trainX, trainY, err := loadColumns(trainPath, colX, colY)
	if err != nil {
		return nil, errors.Wrapf(err, "loading training data from %q", trainPath)
	}
	testX, testY, err := loadColumns(testPath, colX, colY)
	if err != nil {
		return nil, errors.Wrapf(err, "loading test data from %q", testPath)
	}
	return NewSet(trainX, trainY, testX, testY, opts...)
}

func loadColumns(path string, colX, colY []int) (x, y [][]float64, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}

	var lines []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.Contains(line, ",") {
			line = strings.Join(strings.Fields(line), ",")
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, nil, errors.New("no data rows")
	}

	df := dataframe.ReadCSV(strings.NewReader(strings.Join(lines, "\n")),
		dataframe.HasHeader(false), dataframe.DefaultType(series.Float))
	if df.Err != nil {
		return nil, nil, errors.WithStack(df.Err)
	}

	for _, col := range append(append([]int{}, colX...), colY...) {
		if col < 0 || col >= df.Ncol() {
			return nil, nil, errors.Errorf("column %d selected, file has %d columns", col, df.Ncol())
		}
	}

	x = make([][]float64, df.Nrow())
	y = make([][]float64, df.Nrow())
	for i := 0; i < df.Nrow(); i++ {
		x[i] = make([]float64, len(colX))
		for jj, col := range colX {
			x[i][jj] = df.Elem(i, col).Float()
		}
		y[i] = make([]float64, len(colY))
		for jj, col := range colY {
			y[i][jj] = df.Elem(i, col).Float()
		}
	}
	return x, y, nil
}
