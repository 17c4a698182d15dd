package importer

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arkivo-id/wa-meter/internal/model"
	"github.com/arkivo-id/wa-meter/pkg/logger"
)

// Exported transcripts have no fixed schema; the format varies across app
// versions and locales. This importer is deliberately best-effort: lines it
// cannot recognize are continuation text and are dropped silently.

// linePatterns is the ordered list of header formats tried against each
// cleaned line; the first match wins. Capture groups: date, time, sender.
var linePatterns = []*regexp.Regexp{
	// [13/05/2023, 10:00:00] Alice: ...
	regexp.MustCompile(`^\[(\d{1,2}/\d{1,2}/\d{2,4}),\s+(\d{1,2}:\d{2}:\d{2})\]\s+(.+?):\s`),
	// [13/05/2023, 10:00:00 PM] Alice: ...
	regexp.MustCompile(`^\[(\d{1,2}/\d{1,2}/\d{2,4}),\s+(\d{1,2}:\d{2}:\d{2}\s*[APap][Mm])\]\s+(.+?):\s`),
	// [13/05/2023, 10:00 PM] or [13/05/2023, 10:00] Alice: ...
	regexp.MustCompile(`^\[(\d{1,2}/\d{1,2}/\d{2,4}),\s+(\d{1,2}:\d{2}\s*[APap]?[Mm]?)\]\s+(.+?):\s`),
	// 13/05/2023, 10:00 PM - Alice: ...
	regexp.MustCompile(`^(\d{1,2}/\d{1,2}/\d{2,4}),?\s+(\d{1,2}:\d{2}(?::\d{2})?\s*[APap][Mm])\s*[-\x{2013}]\s*(.+?):\s`),
	// 13/05/2023, 10:00 - Alice: ...
	regexp.MustCompile(`^(\d{1,2}/\d{1,2}/\d{2,4}),?\s+(\d{1,2}:\d{2}(?::\d{2})?)\s*[-\x{2013}]\s*(.+?):\s`),
}

// dateToken finds the first numeric date in a line, used for convention detection.
var dateToken = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{2,4})`)

// ampmMarker strips a trailing AM/PM marker from a clock string.
var ampmMarker = regexp.MustCompile(`\s*[APap][Mm]`)

// invisibleChars strips directional marks, zero-width characters, BOM and NBSP
// that exporters sprinkle into transcripts.
var invisibleChars = regexp.MustCompile("[\u200b-\u200f\u202a-\u202e\u2066-\u2069\ufeff\u00a0]")

// systemSenders are placeholder senders that never map to a real participant.
var systemSenders = map[string]struct{}{
	"together": {},
	"system":   {},
	"whatsapp": {},
}

// lineMatch is the tagged result of a successful header match.
type lineMatch struct {
	date   string
	clock  string
	sender string
}

// Importer converts loosely-formatted transcript text into canonical records.
type Importer struct{}

// New creates a transcript importer.
func New() *Importer {
	return &Importer{}
}

// Parse converts the full transcript text into canonical records for the
// given conversation label. Returns the records and the number of lines that
// carried no extractable metadata.
func (imp *Importer) Parse(ctx context.Context, text, chatLabel string) ([]model.MessageRecord, int) {
	log := logger.FromContext(ctx)
	lines := strings.Split(text, "\n")
	dayFirst := detectDayFirst(lines)

	var records []model.MessageRecord
	skipped := 0
	seq := 0

	for _, raw := range lines {
		line := cleanLine(raw)
		if line == "" {
			continue
		}

		m, ok := matchLine(line)
		if !ok {
			// Continuation text of the previous message; nothing to extract.
			skipped++
			continue
		}

		sender := strings.TrimSpace(m.sender)
		if _, isSystem := systemSenders[strings.ToLower(sender)]; isSystem {
			skipped++
			continue
		}

		ts, ok := parseDateTime(m.date, m.clock, dayFirst)
		if !ok {
			skipped++
			continue
		}

		epoch := ts.Unix()
		records = append(records, model.MessageRecord{
			MessageID:   model.ImportMessageID(chatLabel, epoch, seq),
			Timestamp:   epoch,
			SenderPhone: sender,
			SenderName:  sender,
			Direction:   model.DirectionUnknown,
			ChatID:      chatLabel,
			MsgType:     model.DefaultMsgType,
			Source:      model.SourceImport,
		})
		seq++
	}

	log.Info("Parsed transcript",
		zap.String("chat", chatLabel),
		zap.Bool("day_first", dayFirst),
		zap.Int("parsed", len(records)),
		zap.Int("skipped", skipped))

	return records, skipped
}

// cleanLine strips invisible formatting characters, a leading transcript
// marker and carriage returns.
func cleanLine(l string) string {
	l = invisibleChars.ReplaceAllString(l, "")
	l = strings.TrimPrefix(l, "~")
	l = strings.ReplaceAll(l, "\r", "")
	return strings.TrimSpace(l)
}

// matchLine tries the ordered pattern list; first match wins.
func matchLine(line string) (lineMatch, bool) {
	for _, pat := range linePatterns {
		if m := pat.FindStringSubmatch(line); m != nil {
			return lineMatch{date: m[1], clock: m[2], sender: m[3]}, true
		}
	}
	return lineMatch{}, false
}

// detectDayFirst scans for the first date token with a component exceeding 12
// to decide between day-first and month-first ordering. Day-first is the
// default when nothing disambiguates.
func detectDayFirst(lines []string) bool {
	for _, raw := range lines {
		m := dateToken.FindStringSubmatch(cleanLine(raw))
		if m == nil {
			continue
		}
		first, _ := strconv.Atoi(m[1])
		second, _ := strconv.Atoi(m[2])
		if first > 12 {
			return true
		}
		if second > 12 {
			return false
		}
	}
	return true
}

// parseDateTime combines a matched date and clock string using the detected
// convention. Two-digit years are 2000-based; 12-hour clocks are converted
// when an AM/PM marker is present.
func parseDateTime(dateStr, clockStr string, dayFirst bool) (time.Time, bool) {
	dateStr = strings.ReplaceAll(dateStr, ".", "/")
	parts := strings.Split(dateStr, "/")
	if len(parts) != 3 {
		return time.Time{}, false
	}

	a, errA := strconv.Atoi(parts[0])
	b, errB := strconv.Atoi(parts[1])
	year, errC := strconv.Atoi(parts[2])
	if errA != nil || errB != nil || errC != nil {
		return time.Time{}, false
	}

	var day, month int
	if dayFirst {
		day, month = a, b
	} else {
		month, day = a, b
	}
	if year < 100 {
		year += 2000
	}

	clockStr = strings.TrimSpace(clockStr)
	pm := strings.Contains(strings.ToLower(clockStr), "pm")
	am := strings.Contains(strings.ToLower(clockStr), "am")
	clockStr = strings.TrimSpace(ampmMarker.ReplaceAllString(clockStr, ""))

	tp := strings.Split(clockStr, ":")
	if len(tp) < 2 {
		return time.Time{}, false
	}
	hour, errH := strconv.Atoi(tp[0])
	minute, errM := strconv.Atoi(tp[1])
	if errH != nil || errM != nil {
		return time.Time{}, false
	}
	second := 0
	if len(tp) > 2 {
		second, _ = strconv.Atoi(tp[2])
	}

	if pm && hour < 12 {
		hour += 12
	}
	if am && hour == 12 {
		hour = 0
	}

	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, false
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	// time.Date normalizes out-of-range values; a changed day means the date
	// was invalid (e.g. Feb 31).
	if t.Day() != day || t.Month() != time.Month(month) {
		return time.Time{}, false
	}

	return t, true
}
