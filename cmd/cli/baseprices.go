package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"github.com/stayrate/pricing-service/internal/baseprice"
	"github.com/stayrate/pricing-service/internal/database"
)

var basePricesSheet string

// basePricesCmd represents the baseprices command group
var basePricesCmd = &cobra.Command{
	Use:   "baseprices",
	Short: "Inspect and import base price configuration",
}

var basePricesShowCmd = &cobra.Command{
	Use:   "show <venue-id> <product-id>",
	Short: "Show the active base price for a venue and product",
	Args:  cobra.ExactArgs(2),
	RunE:  runBasePricesShow,
}

var basePricesImportCmd = &cobra.Command{
	Use:   "import <file.xlsx>",
	Short: "Import base prices from a spreadsheet",
	Long: `Import base price configuration from an XLSX spreadsheet. Each row
supersedes the currently active price for its venue and product,
creating a new version.

Expected columns (first row is the header):
  venue_id, product_id, amount, currency, tax_rate, tax_inclusive, min_price, max_price`,
	Example: `  pricing-service baseprices import prices.xlsx
  pricing-service baseprices import prices.xlsx --sheet Prices`,
	Args: cobra.ExactArgs(1),
	RunE: runBasePricesImport,
}

func init() {
	rootCmd.AddCommand(basePricesCmd)
	basePricesCmd.AddCommand(basePricesShowCmd, basePricesImportCmd)

	basePricesImportCmd.Flags().StringVar(&basePricesSheet, "sheet", "", "Sheet name (defaults to the first sheet)")
}

func runBasePricesShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store := baseprice.NewPGStore(database.Pool())

	bp, err := store.ActiveBasePrice(ctx, args[0], args[1])
	if err != nil {
		return fmt.Errorf("fetch base price: %w", err)
	}
	if bp == nil {
		fmt.Println("No active base price configured")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "ID\t%s\n", bp.ID)
	fmt.Fprintf(w, "Amount\t%s %s\n", bp.Amount.String(), bp.Currency)
	fmt.Fprintf(w, "Tax rate\t%s\n", bp.TaxRate.String())
	fmt.Fprintf(w, "Version\t%d\n", bp.Version)
	fmt.Fprintf(w, "Valid from\t%s\n", bp.ValidFrom.Format(time.RFC3339))
	if bp.MinPrice != nil {
		fmt.Fprintf(w, "Min price\t%s\n", bp.MinPrice.String())
	}
	if bp.MaxPrice != nil {
		fmt.Fprintf(w, "Max price\t%s\n", bp.MaxPrice.String())
	}
	return w.Flush()
}

func runBasePricesImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store := baseprice.NewPGStore(database.Pool())

	f, err := excelize.OpenFile(args[0])
	if err != nil {
		return fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	sheet := basePricesSheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}

	xlsxRows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(xlsxRows) < 2 {
		return fmt.Errorf("sheet %q has no data rows", sheet)
	}

	// Resolve column positions from the header row; column order in
	// exported sheets is not stable.
	cols := map[string]int{}
	for i, name := range xlsxRows[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"venue_id", "product_id", "amount"} {
		if _, ok := cols[required]; !ok {
			return fmt.Errorf("sheet %q is missing required column %q", sheet, required)
		}
	}

	cell := func(row []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	imported, skipped := 0, 0
	for i, row := range xlsxRows[1:] {
		rowNum := i + 2

		venueID := cell(row, "venue_id")
		productID := cell(row, "product_id")
		amountStr := cell(row, "amount")
		if venueID == "" || productID == "" || amountStr == "" {
			skipped++
			continue
		}

		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			logger.Warn().Int("row", rowNum).Str("amount", amountStr).Msg("Skipping row with invalid amount")
			skipped++
			continue
		}

		bp := baseprice.BasePrice{
			VenueID:   venueID,
			ProductID: productID,
			Amount:    amount,
			Currency:  "EUR",
			TaxRate:   decimal.NewFromFloat(0.10),
		}
		if currency := cell(row, "currency"); currency != "" {
			bp.Currency = strings.ToUpper(currency)
		}
		if taxStr := cell(row, "tax_rate"); taxStr != "" {
			if tax, err := decimal.NewFromString(taxStr); err == nil {
				bp.TaxRate = tax
			}
		}
		if inclStr := cell(row, "tax_inclusive"); inclStr != "" {
			bp.TaxInclusive, _ = strconv.ParseBool(inclStr)
		}
		if minStr := cell(row, "min_price"); minStr != "" {
			if minP, err := decimal.NewFromString(minStr); err == nil {
				bp.MinPrice = &minP
			}
		}
		if maxStr := cell(row, "max_price"); maxStr != "" {
			if maxP, err := decimal.NewFromString(maxStr); err == nil {
				bp.MaxPrice = &maxP
			}
		}

		created, err := store.Supersede(ctx, bp)
		if err != nil {
			return fmt.Errorf("row %d (%s/%s): %w", rowNum, venueID, productID, err)
		}

		logger.Info().
			Str("venue_id", created.VenueID).
			Str("product_id", created.ProductID).
			Str("amount", created.Amount.String()).
			Int("version", created.Version).
			Msg("Base price imported")
		imported++
	}

	fmt.Printf("Imported %d base prices (%d rows skipped)\n", imported, skipped)
	return nil
}
