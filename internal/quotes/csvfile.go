package quotes

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gocarina/gocsv"

	"ivsurface/internal/errors"
	"ivsurface/internal/models"
)

// CSVFile replays contracts previously exported with the quotes command.
type CSVFile struct {
	Path string
}

// Name implements Provider.
func (f *CSVFile) Name() string { return "csv:" + f.Path }

// FetchChain implements Provider. The ticker is only used to label the snapshot.
func (f *CSVFile) FetchChain(ctx context.Context, ticker string) (*models.OptionChainSnapshot, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", f.Path, err)
	}

	points, err := ReadContractsCSV(file)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, errors.NewDataError("csv", ticker, f.Path+" has no contracts", errors.ErrNoOptionData)
	}

	snap := &models.OptionChainSnapshot{
		Ticker:    ticker,
		FetchedAt: info.ModTime(),
		Points:    points,
	}
	if p := points[0]; p.Moneyness > 0 {
		snap.SpotPrice = p.Strike / p.Moneyness
	}
	return snap, nil
}

// ReadContractsCSV parses rows written by render.ContractsCSV.
func ReadContractsCSV(r io.Reader) ([]models.ContractPoint, error) {
	var rows []*models.ContractPoint
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, errors.NewDataError("csv", "", "malformed contracts file", err)
	}

	points := make([]models.ContractPoint, 0, len(rows))
	for i, p := range rows {
		if p.Expiration != "" {
			d, err := time.Parse("2006-01-02", p.Expiration)
			if err != nil {
				return nil, errors.NewValidationError(fmt.Sprintf("row %d expiration_date", i+1), p.Expiration, "want YYYY-MM-DD")
			}
			p.ExpirationDate = d
		}
		points = append(points, *p)
	}
	return points, nil
}
