package dataset

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"

	"call-insights-go/internal/types"
)

const (
	OutcomesSheet = "Outcomes"
	SummarySheet  = "Summary"
)

var outcomeHeader = []any{"File", "Status", "Customer ID", "Phone", "Complaint", "Sentiment", "Resolved", "Seconds", "Error"}

// WriteReport saves a batch result as an .xlsx workbook with one row per
// file and a summary sheet.
func WriteReport(path string, res types.BatchResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", OutcomesSheet); err != nil {
		return eris.Wrap(err, "dataset: rename sheet")
	}
	if err := writeRow(f, OutcomesSheet, 1, outcomeHeader); err != nil {
		return err
	}
	for i, o := range res.Results {
		row := []any{o.File, string(o.Status), "", "", "", "", "", o.ElapsedSec, o.Error}
		if o.Record != nil {
			r := o.Record
			phone := ""
			if r.PhoneNumber != nil {
				phone = *r.PhoneNumber
			}
			row[2], row[3], row[4], row[5], row[6] = r.CustomerID, phone, string(r.ComplaintType), string(r.CustomerSentiment), r.Resolved
		}
		if err := writeRow(f, OutcomesSheet, i+2, row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(SummarySheet); err != nil {
		return eris.Wrap(err, "dataset: add summary sheet")
	}
	summary := [][]any{
		{"Batch ID", res.BatchID},
		{"Total files", res.TotalFiles},
		{"Inserted", res.Inserted},
		{"Failed", res.Failed},
		{"Committed", res.Committed},
		{"Total seconds", res.TotalTimeSec},
	}
	if res.InsertError != "" {
		summary = append(summary, []any{"Insert error", res.InsertError})
	}
	if ins := res.Insight; ins != nil {
		summary = append(summary,
			[]any{"Resolved rate", ins.ResolvedRate},
			[]any{"Phone capture rate", ins.PhoneCaptureRate},
		)
		for _, c := range types.ComplaintTypes {
			summary = append(summary, []any{fmt.Sprintf("Complaints: %s", c), ins.ComplaintCounts[c]})
		}
		for _, s := range types.Sentiments {
			summary = append(summary, []any{fmt.Sprintf("Sentiment: %s", s), ins.SentimentCounts[s]})
		}
	}
	if a := res.Action; a != nil {
		summary = append(summary,
			[]any{"Insight", a.Insight},
			[]any{"Action", a.Action},
			[]any{"Impact", a.Impact},
		)
	}
	for i, row := range summary {
		if err := writeRow(f, SummarySheet, i+1, row); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return eris.Wrapf(err, "dataset: save report %s", path)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return eris.Wrap(err, "dataset: cell name")
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return eris.Wrapf(err, "dataset: write %s row %d", sheet, row)
	}
	return nil
}
