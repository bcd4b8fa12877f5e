package datasets

import (
	_ "embed"
	"strings"

	"github.com/wyfcoding/forest/algorithm/matrix"
)

//go:embed iris.csv
var irisCSV string

// LoadIris 返回 Iris 数据集：150x4 特征矩阵与 150x1 标签 (0/1/2，每类 50 条).
func LoadIris() (*matrix.Dense, *matrix.Dense) {
	X, y, err := ReadCSV(strings.NewReader(irisCSV), DefaultCSVOptions())
	if err != nil {
		panic("datasets: embedded iris data is corrupt: " + err.Error())
	}
	return X, y
}
