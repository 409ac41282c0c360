// Package seed fills a fresh database with reference data.
package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"pharmacy/m/domain"
	"pharmacy/m/internal/store"
)

// catalogColumns is the expected header of a drug catalog file.
var catalogColumns = []string{"name", "generic_name", "dosage", "category", "unit", "controlled", "requires_prescription", "min_stock"}

// LoadDrugsFile ingests the drug catalog at path. See LoadDrugs.
func LoadDrugsFile(ctx context.Context, st *store.Store, path string, logger *logrus.Logger) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening drug catalog %s: %w", path, err)
	}
	defer file.Close()
	return LoadDrugs(ctx, st, file, logger)
}

// LoadDrugs ingests CSV rows into the drugs table inside one transaction.
// Rows whose name and dosage already exist are skipped; malformed rows are
// logged and skipped. It returns the number of drugs inserted.
func LoadDrugs(ctx context.Context, st *store.Store, r io.Reader, logger *logrus.Logger) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("reading drug catalog header: %w", err)
	}
	if len(header) < 1 || !strings.EqualFold(strings.TrimSpace(header[0]), catalogColumns[0]) {
		return 0, fmt.Errorf("unexpected drug catalog header %v, want %v", header, catalogColumns)
	}

	rows := 0
	err = st.InTx(ctx, func(q *store.Queries) error {
		line := 1
		for {
			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return nil
			}
			line++
			if err != nil {
				logger.WithFields(logrus.Fields{"module": "seed", "line": line}).Warn("unable to read drug row: " + err.Error())
				continue
			}
			drug, ok := parseDrug(record)
			if !ok {
				logger.WithFields(logrus.Fields{"module": "seed", "line": line}).Warn("skipping malformed drug row")
				continue
			}
			inserted, err := q.UpsertCatalogDrug(ctx, drug)
			if err != nil {
				return err
			}
			if inserted {
				rows++
			}
		}
	})
	if err != nil {
		return 0, err
	}

	logger.WithField("rows", rows).Info("seeded drug catalog")
	return rows, nil
}

func parseDrug(record []string) (domain.Drug, bool) {
	field := func(i int) string {
		if i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	d := domain.Drug{
		Name:                 field(0),
		GenericName:          field(1),
		Dosage:               field(2),
		Category:             field(3),
		Unit:                 field(4),
		ControlledDrug:       parseBool(field(5)),
		RequiresPrescription: parseBool(field(6)),
		MinStockQuantity:     domain.DefaultMinimumStock,
	}
	if d.Name == "" {
		return d, false
	}
	if d.Unit == "" {
		d.Unit = domain.DefaultDrugUnit
	}
	if raw := field(7); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return d, false
		}
		d.MinStockQuantity = n
	}
	return d, true
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}
