// Package export renders the token registry as an XLSX workbook.
package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"

	"github.com/mtlprog/oracle/internal/domain"
)

const tokensSheet = "TOKENS"

// TokenSource is the read side of a reference aggregator.
type TokenSource interface {
	Tokens() []domain.TokenInformation
	Aggregator(token domain.Address) domain.Address
	GetPrice(ctx context.Context, token domain.Address) (*big.Int, error)
	GetTimeStamp(ctx context.Context, token domain.Address) (*big.Int, error)
}

// TokenRow is one registered token with its current quote, if readable.
type TokenRow struct {
	domain.TokenInformation
	Aggregator domain.Address
	Price      *big.Int // nil when the aggregator could not be read
	UpdatedAt  *big.Int
}

// Service builds the workbook from a TokenSource.
type Service struct {
	source TokenSource
}

// NewService creates a new export Service.
func NewService(source TokenSource) *Service {
	return &Service{source: source}
}

// Rows reads every registered token together with its latest quote. Quote
// failures are logged and leave the price columns blank.
func (s *Service) Rows(ctx context.Context) []TokenRow {
	return lo.Map(s.source.Tokens(), func(t domain.TokenInformation, _ int) TokenRow {
		row := TokenRow{TokenInformation: t, Aggregator: s.source.Aggregator(t.Token)}

		price, err := s.source.GetPrice(ctx, t.Token)
		if err != nil {
			slog.Warn("export: price unavailable", "token", t.Token.Hex(), "error", err)
			return row
		}
		ts, err := s.source.GetTimeStamp(ctx, t.Token)
		if err != nil {
			slog.Warn("export: timestamp unavailable", "token", t.Token.Hex(), "error", err)
			return row
		}
		row.Price, row.UpdatedAt = price, ts
		return row
	})
}

// Export writes the TOKENS workbook to w.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	return WriteXLSX(w, s.Rows(ctx), time.Now().UTC())
}

var tokenHeaders = []any{
	"N", "Token", "Name", "Symbol", "Decimals", "Aggregator", "Logo",
	"Price", "Updated", "Price decimals", "Volatility",
	"Active", "Deposit", "Borrow", "Trade",
}

// buildTokenRows builds the TOKENS sheet data including the header row.
func buildTokenRows(rows []TokenRow) [][]any {
	data := make([][]any, 0, len(rows)+1)
	data = append(data, tokenHeaders)

	for i, r := range rows {
		var price, updated any
		if r.Price != nil {
			price = domain.FormatScaled(r.Price, int32(r.PriceDecimals))
		}
		if r.UpdatedAt != nil && r.UpdatedAt.IsInt64() {
			updated = time.Unix(r.UpdatedAt.Int64(), 0).UTC().Format(time.RFC3339)
		}

		data = append(data, []any{
			i, r.Token.Hex(), r.Name, r.Symbol, int(r.Decimals), r.Aggregator.Hex(), r.Logo,
			price, updated, int(r.PriceDecimals), domain.FormatScaled(r.Volatility, domain.VolatilityScale),
			yesNo(r.IsActive), yesNo(r.CanDeposit), yesNo(r.CanBorrow), yesNo(r.CanTrade),
		})
	}
	return data
}

// WriteXLSX renders rows into a single-sheet workbook stamped with at.
func WriteXLSX(w io.Writer, rows []TokenRow, at time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", tokensSheet); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}

	for i, row := range buildTokenRows(rows) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(tokensSheet, cell, &row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+1, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	if err := f.SetRowStyle(tokensSheet, 1, 1, bold); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}
	if err := f.SetColWidth(tokensSheet, "B", "B", 44); err != nil {
		return err
	}
	if err := f.SetColWidth(tokensSheet, "F", "F", 44); err != nil {
		return err
	}
	if err := f.SetPanes(tokensSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freezing header: %w", err)
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   "Token registry",
		Created: at.Format(time.RFC3339),
	}); err != nil {
		return fmt.Errorf("setting document properties: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
