// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/AleutianAI/DimBridge/pkg/ux"
	"github.com/AleutianAI/DimBridge/services/predicate_engine"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// formatPredicate renders a predicate as "lo < attr < hi AND ...". An empty
// predicate matches every point.
func formatPredicate(p predicate_engine.Predicate) string {
	if len(p) == 0 {
		return "(all points)"
	}
	parts := make([]string, len(p))
	for i, c := range p {
		parts[i] = fmt.Sprintf("%s < %s < %s", formatFloat(c.Interval[0]), c.Attribute, formatFloat(c.Interval[1]))
	}
	return strings.Join(parts, " AND ")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 5, 64)
}

// renderPlain writes one line per brush followed by its quality scores.
func renderPlain(w io.Writer, res *predicate_engine.Result) {
	for t, p := range res.Predicates {
		q := res.Qualities[t]
		fmt.Fprintf(w, "brush %d: %s\n", t, formatPredicate(p))
		fmt.Fprintf(w, "  accuracy=%.3f precision=%.3f recall=%.3f f1=%.3f\n",
			q.Accuracy, q.Precision, q.Recall, q.F1)
	}
}

// renderTable writes a styled table for terminals.
func renderTable(w io.Writer, res *predicate_engine.Result, mode predicate_engine.Mode) {
	rows := make([][]string, len(res.Predicates))
	for t, p := range res.Predicates {
		q := res.Qualities[t]
		rows[t] = []string{
			strconv.Itoa(t),
			formatPredicate(p),
			fmt.Sprintf("%.3f", q.Accuracy),
			fmt.Sprintf("%.3f", q.Precision),
			fmt.Sprintf("%.3f", q.Recall),
			fmt.Sprintf("%.3f", q.F1),
		}
	}
	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(ux.Styles.TableBorder).
		Headers("BRUSH", "PREDICATE", "ACC", "PREC", "REC", "F1").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return ux.Styles.TableHeader
			}
			return ux.Styles.TableCell
		})

	ux.Title(w, ux.ModeStyled, fmt.Sprintf("DimBridge predicates (%s)", mode))
	fmt.Fprintln(w, tbl.Render())
	if mode == predicate_engine.ModeRegression {
		ux.Muted(w, ux.ModeStyled, fmt.Sprintf("final loss %.5f after %d iterations", res.FinalLoss, res.Iterations))
	}
}
