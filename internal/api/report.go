package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/signalsfoundry/linkplanner/internal/planner"
	"github.com/xuri/excelize/v2"
)

const (
	towersSheet = "towers"
	linksSheet  = "links"
	zonesSheet  = "zones"

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// BuildReportXLSX renders a session snapshot as a workbook with one sheet
// each for towers, links and zones.
func BuildReportXLSX(snap planner.Snapshot) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", towersSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(linksSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(zonesSheet); err != nil {
		return nil, err
	}

	towers := [][]any{{"ID", "Name", "Latitude", "Longitude", "Frequency (GHz)", "Pending"}}
	for _, t := range snap.Towers {
		towers = append(towers, []any{t.ID, t.Name, t.Position.Lat, t.Position.Lng, t.FrequencyGHz, t.ID == snap.Pending})
	}

	links := [][]any{{"ID", "From", "To", "Frequency (GHz)", "Distance (m)", "Path loss (dB)"}}
	for _, l := range snap.Links {
		links = append(links, []any{l.ID, l.FromTowerID, l.ToTowerID, l.FrequencyGHz, l.DistanceMeters, l.PathLossDB})
	}

	zones := [][]any{{"Link ID", "Midpoint latitude", "Midpoint longitude", "Radius (m)", "Distance (m)", "Frequency (GHz)", "Elevation (m)"}}
	for _, z := range snap.Zones {
		var elev any = ""
		if z.HasElevation() {
			elev = *z.ElevationMeters
		}
		zones = append(zones, []any{z.LinkID, z.Midpoint.Lat, z.Midpoint.Lng, z.RadiusMeters, z.DistanceMeters, z.FrequencyGHz, elev})
	}

	for _, sheet := range []struct {
		name string
		rows [][]any
	}{
		{towersSheet, towers},
		{linksSheet, links},
		{zonesSheet, zones},
	} {
		if err := writeRows(f, sheet.name, sheet.rows); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeRows writes rows to sheet starting at A1 and returns the first error.
func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func (s *Server) report(w http.ResponseWriter, r *http.Request) {
	data, err := BuildReportXLSX(s.state.Snapshot())
	if err != nil {
		s.fail(w, r, fmt.Errorf("build report: %w", err))
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="linkplanner.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
