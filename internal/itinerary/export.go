package itinerary

import (
	"bytes"
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	ics "github.com/arran4/golang-ical"
	"github.com/phpdave11/gofpdf"
	"github.com/ringsaturn/tzf"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
)

const (
	dayStartHour = 9
	dayLength    = 12 * time.Hour
	maxVisit     = 3 * time.Hour
)

// ZoneFinder resolves an IANA time zone name from coordinates.
type ZoneFinder interface {
	GetTimezoneName(lng float64, lat float64) string
}

// NewZoneFinder loads the bundled time zone boundaries.
func NewZoneFinder() (ZoneFinder, error) {
	return tzf.NewDefaultFinder()
}

// location returns the time zone of the first located place, or UTC.
func (s *Service) location(it *Itinerary) *time.Location {
	if s.zones == nil {
		return time.UTC
	}
	for _, day := range it.Days {
		for _, p := range day.Places {
			if p.Location == nil {
				continue
			}
			name := s.zones.GetTimezoneName(p.Location.Longitude, p.Location.Latitude)
			loc, err := time.LoadLocation(name)
			if err != nil || name == "" {
				s.logger.WithField("zone", name).Debug("Unknown time zone, using UTC")
				return time.UTC
			}
			return loc
		}
	}
	return time.UTC
}

// visitSlots spreads n visits over the day starting at 09:00 local time.
func visitSlots(date time.Time, n int, loc *time.Location) [][2]time.Time {
	if n == 0 {
		return nil
	}
	slot := dayLength / time.Duration(n)
	if slot > maxVisit {
		slot = maxVisit
	}
	start := time.Date(date.Year(), date.Month(), date.Day(), dayStartHour, 0, 0, 0, loc)
	out := make([][2]time.Time, n)
	for i := range out {
		from := start.Add(time.Duration(i) * slot)
		out[i] = [2]time.Time{from, from.Add(slot)}
	}
	return out
}

// ExportICS renders the itinerary as an iCalendar file with one event per
// placed stop.
func (s *Service) ExportICS(ctx context.Context, clientID string) ([]byte, error) {
	it, err := s.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	loc := s.location(it)
	stamp := s.now()

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//TravelRizz//Itinerary//EN")
	cal.SetXWRCalName(fmt.Sprintf("Trip to %s", it.Destination))
	cal.SetXWRTimezone(loc.String())

	for _, day := range it.Days {
		date, _ := time.Parse("2006-01-02", day.Date)
		slots := visitSlots(date, len(day.Places), loc)
		for i, p := range day.Places {
			event := cal.AddEvent(fmt.Sprintf("%s-%s-%d@travelrizz", clientID, p.ID, day.Index))
			event.SetDtStampTime(stamp)
			event.SetStartAt(slots[i][0])
			event.SetEndAt(slots[i][1])
			event.SetSummary(p.DisplayName.Text)
			if p.FormattedAddress != "" {
				event.SetLocation(p.FormattedAddress)
			}
			event.SetDescription(fmt.Sprintf("%s - %s, stop %d", p.TypeDisplayName(), day.ID, i+1))
		}
	}

	s.logger.WithFields(logrus.Fields{
		"client_id": clientID,
		"days":      len(it.Days),
		"zone":      loc.String(),
	}).Debug("Exported itinerary calendar")

	return []byte(cal.Serialize()), nil
}

// ExportPDF renders a printable day-by-day itinerary. Days with two or more
// located stops carry a QR code linking to their driving directions.
func (s *Service) ExportPDF(ctx context.Context, clientID string) ([]byte, error) {
	it, err := s.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Trip to %s", it.Destination), true)
	pdf.SetCreationDate(s.now())
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, tr(fmt.Sprintf("Trip to %s", it.Destination)), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, fmt.Sprintf("%s - %s", it.StartDate, it.EndDate), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	for _, day := range it.Days {
		if pdf.GetY() > 240 {
			pdf.AddPage()
		}
		top := pdf.GetY()

		date, _ := time.Parse("2006-01-02", day.Date)
		pdf.SetFont("Helvetica", "B", 13)
		pdf.CellFormat(140, 8, fmt.Sprintf("Day %d - %s", day.Index+1, date.Format("Mon, 02 Jan 2006")), "", 1, "L", false, 0, "")

		pdf.SetFont("Helvetica", "", 10)
		if len(day.Places) == 0 {
			pdf.CellFormat(140, 6, "No places planned", "", 1, "L", false, 0, "")
		}
		for i, p := range day.Places {
			line := fmt.Sprintf("%d. %s (%s)", i+1, p.DisplayName.Text, p.TypeDisplayName())
			if p.FormattedAddress != "" {
				line += "\n    " + p.FormattedAddress
			}
			pdf.MultiCell(140, 5, tr(line), "", "L", false)
		}
		bottom := pdf.GetY()

		if link := DirectionsURL(stopsOf(day)); link != "" {
			if err := addQR(pdf, day.ID, link, top); err != nil {
				return nil, err
			}
			if qrBottom := top + 32; qrBottom > bottom {
				bottom = qrBottom
			}
		}
		pdf.SetY(bottom + 4)
	}

	if len(it.Unplaced) > 0 {
		pdf.SetFont("Helvetica", "B", 13)
		pdf.CellFormat(0, 8, "Not yet scheduled", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		for _, p := range it.Unplaced {
			pdf.MultiCell(0, 5, tr("- "+p.DisplayName.Text), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render itinerary PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func addQR(pdf *gofpdf.Fpdf, name, link string, y float64) error {
	png, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		return fmt.Errorf("failed to encode directions QR code: %w", err)
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
	pdf.ImageOptions(name, 165, y, 30, 30, false, opts, 0, link)
	return nil
}
