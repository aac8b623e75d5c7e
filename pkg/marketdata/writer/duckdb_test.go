package writer

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rxtech-lab/radx/internal/logger"
	"github.com/rxtech-lab/radx/internal/types"
	"github.com/rxtech-lab/radx/pkg/errors"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type DuckDBWriterTestSuite struct {
	suite.Suite
	tempDir string
	log     *logger.Logger
}

func TestDuckDBWriterSuite(t *testing.T) {
	suite.Run(t, new(DuckDBWriterTestSuite))
}

func (suite *DuckDBWriterTestSuite) SetupSuite() {
	config := zap.NewDevelopmentConfig()
	config.OutputPaths = []string{}
	config.ErrorOutputPaths = []string{}
	zapLogger, err := config.Build()
	suite.Require().NoError(err)
	suite.log = &logger.Logger{Logger: zapLogger}
}

func (suite *DuckDBWriterTestSuite) SetupTest() {
	tempDir, err := os.MkdirTemp("", "bar-writer-test")
	suite.Require().NoError(err)
	suite.tempDir = tempDir
}

func (suite *DuckDBWriterTestSuite) TearDownTest() {
	os.RemoveAll(suite.tempDir)
}

func (suite *DuckDBWriterTestSuite) bars() []types.Bar {
	berlin, err := time.LoadLocation("Europe/Berlin")
	suite.Require().NoError(err)

	start := time.Date(2025, 3, 14, 22, 57, 0, 0, time.UTC)
	out := make([]types.Bar, 0, 3)

	// reversed on purpose, the export orders by time
	for i := 2; i >= 0; i-- {
		bar := types.Bar{
			Time:             start.Add(time.Duration(i) * 3 * time.Minute),
			Open:             100 + float64(i),
			High:             101 + float64(i),
			Low:              99 + float64(i),
			Close:            100.5 + float64(i),
			Volume:           int64(10 * (i + 1)),
			SourceContractID: "CON.F.US.EP.M25",
		}
		out = append(out, bar.WithLocation(berlin))
	}

	return out
}

func (suite *DuckDBWriterTestSuite) TestWriteAllExportsParquet() {
	outputPath := filepath.Join(suite.tempDir, "bars.parquet")

	path, err := WriteAll(NewDuckDBWriter(outputPath, suite.log), suite.bars())
	suite.Require().NoError(err)
	suite.Equal(outputPath, path)
	suite.FileExists(path)

	db, err := sql.Open("duckdb", ":memory:")
	suite.Require().NoError(err)
	defer db.Close()

	rows, err := db.Query(`SELECT open, local_date, volume, source_contract_id FROM read_parquet('` + path + `')`)
	suite.Require().NoError(err)
	defer rows.Close()

	var (
		opens []float64
		dates []string
	)

	for rows.Next() {
		var (
			open     float64
			date     string
			volume   int64
			contract string
		)
		suite.Require().NoError(rows.Scan(&open, &date, &volume, &contract))
		suite.Equal("CON.F.US.EP.M25", contract)
		opens = append(opens, open)
		dates = append(dates, date)
	}
	suite.Require().NoError(rows.Err())

	suite.Equal([]float64{100, 101, 102}, opens)
	// 22:57 UTC is 23:57 in Berlin, 23:00 UTC is already the next local day
	suite.Equal([]string{"2025-03-14", "2025-03-15", "2025-03-15"}, dates)
}

func (suite *DuckDBWriterTestSuite) TestWriteBeforeInitialize() {
	w := NewDuckDBWriter(filepath.Join(suite.tempDir, "x.parquet"), suite.log)

	err := w.Write(suite.bars()[0])
	suite.Error(err)
	suite.Equal(errors.ErrCodeExportFailed, errors.GetCode(err))

	_, err = w.Finalize()
	suite.Error(err)
	suite.NoError(w.Close())
}

func (suite *DuckDBWriterTestSuite) TestCloseWithoutFinalizeRollsBack() {
	outputPath := filepath.Join(suite.tempDir, "abandoned.parquet")
	w := NewDuckDBWriter(outputPath, suite.log)

	suite.Require().NoError(w.Initialize())
	suite.Require().NoError(w.Write(suite.bars()[0]))
	suite.NoError(w.Close())
	suite.NoFileExists(outputPath)
	suite.Equal(outputPath, w.GetOutputPath())
}

func (suite *DuckDBWriterTestSuite) TestUnwritableDestination() {
	outputPath := filepath.Join(suite.tempDir, "missing", "dir", "bars.parquet")

	_, err := WriteAll(NewDuckDBWriter(outputPath, suite.log), suite.bars())
	suite.Error(err)
	suite.Equal(errors.ErrCodeExportFailed, errors.GetCode(err))
}
