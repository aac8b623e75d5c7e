package writer

import (
	"github.com/rxtech-lab/radx/internal/types"
)

// BarWriter writes a bar series to a destination file.
type BarWriter interface {
	// Initialize prepares the writer. It must be called before Write.
	Initialize() error
	// Write buffers a single bar.
	Write(bar types.Bar) error
	// Finalize flushes every buffered bar and returns the output path.
	Finalize() (outputPath string, err error)
	// Close releases any resources held by the writer.
	Close() error
	// GetOutputPath returns the configured output file path.
	GetOutputPath() string
}

// WriteAll writes bars through w and finalizes it. w is closed in every case.
func WriteAll(w BarWriter, bars []types.Bar) (string, error) {
	defer w.Close()

	if err := w.Initialize(); err != nil {
		return "", err
	}

	for _, bar := range bars {
		if err := w.Write(bar); err != nil {
			return "", err
		}
	}

	return w.Finalize()
}
