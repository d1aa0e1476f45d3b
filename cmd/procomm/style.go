package main

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
)

func reportPanel(r report) string {
	pbox := pterm.DefaultBox.WithHorizontalPadding(4).WithTopPadding(1).WithBottomPadding(1)
	status := pterm.LightGreen("OK")
	if r.Elements != dataLength || r.RMICalls != 1 {
		status = pterm.LightRed("INCOMPLETE")
	}
	return pbox.WithTitle(pterm.LightCyan(r.Remote)).WithTitleTopLeft().Sprintf(
		"Elements: %d\nSum: %d\nRMI %d calls: %v\n%s", r.Elements, r.Sum, r.RMICalls, r.RMIArg, status)
}

func spawnTable(results []spawnResult) pterm.TableData {
	data := pterm.TableData{{"Rank", "Records", "Sum of ranks"}}
	for _, r := range results {
		data = append(data, []string{strconv.Itoa(r.Rank), strconv.Itoa(r.Records), strconv.FormatInt(r.Sum, 10)})
	}
	return data
}

func meshLine(ranks []int32) string {
	return pterm.BgGreen.Sprint(fmt.Sprint(ranks))
}
