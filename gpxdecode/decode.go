// Package gpxdecode reads GPX documents into the decoder-neutral track model.
//
// Track point extensions are matched by local name only, so Garmin, Cluetrust
// and other TrackPointExtension variants decode alike. The Garmin
// TrackStatsExtension is vendor specific and is matched by full namespace.
package gpxdecode

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/lucasjlepore/trackingest/logging"
	"github.com/lucasjlepore/trackingest/track"
)

// TrackStatsNamespace is the namespace of Garmin's per-track summary block.
const TrackStatsNamespace = "http://www.garmin.com/xmlschemas/TrackStatsExtension/v1"

// ErrMalformed is returned when the document is not well-formed GPX.
var ErrMalformed = errors.New("malformed GPX file")

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
}

type parser struct {
	dec   *xml.Decoder
	stack []xml.Name
	text  strings.Builder

	out     *track.Decoded
	segment int

	docName        string
	firstTrackName string
	firstTrackType string
	tracks         int

	point *track.RawPoint
	// stats is non-nil while inside the TrackStatsExtension being captured.
	stats *track.SessionSummary
}

// Decode parses a complete GPX document.
func Decode(data []byte) (*track.Decoded, error) {
	p := &parser{
		dec:     xml.NewDecoder(bytes.NewReader(data)),
		out:     &track.Decoded{},
		segment: -1,
	}
	p.dec.CharsetReader = charsetReader

	if err := p.run(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	for _, w := range p.out.Warnings {
		logging.Warn().Str("format", "gpx").Msg(w)
	}

	switch {
	case p.docName != "":
		p.out.Name = p.docName
	case p.firstTrackName != "":
		p.out.Name = p.firstTrackName
	}
	p.out.Sport = track.NormalizeSport(p.firstTrackType)
	return p.out, nil
}

func (p *parser) run() error {
	sawRoot := false
	for {
		tok, err := p.dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if len(p.stack) == 0 {
				if sawRoot {
					return errors.New("multiple root elements")
				}
				if t.Name.Local != "gpx" {
					return fmt.Errorf("root element is <%s>, not <gpx>", t.Name.Local)
				}
				sawRoot = true
			}
			p.stack = append(p.stack, t.Name)
			p.text.Reset()
			p.start(t)
		case xml.EndElement:
			p.end(t.Name, strings.TrimSpace(p.text.String()))
			p.stack = p.stack[:len(p.stack)-1]
			p.text.Reset()
		case xml.CharData:
			p.text.Write(t)
		}
	}
	if !sawRoot {
		return errors.New("no <gpx> element")
	}
	return nil
}

func (p *parser) start(el xml.StartElement) {
	switch el.Name.Local {
	case "trk":
		if p.parent() == "gpx" {
			p.tracks++
		}
	case "trkseg":
		p.segment++
	case "trkpt":
		p.point = &track.RawPoint{Segment: max(p.segment, 0)}
		lat, latOK := p.coordinateAttr(el, "lat", 90)
		lon, lonOK := p.coordinateAttr(el, "lon", 180)
		if latOK && lonOK {
			p.point.Latitude = &lat
			p.point.Longitude = &lon
		}
	case "TrackStatsExtension":
		// Only the first track carrying stats contributes a summary.
		if el.Name.Space == TrackStatsNamespace && p.point == nil && p.out.Summary == nil && p.stats == nil {
			p.stats = &track.SessionSummary{}
		}
	}
}

func (p *parser) end(name xml.Name, text string) {
	switch {
	case p.stats != nil:
		p.endStats(name, text)
	case p.point != nil:
		p.endPoint(name, text)
	default:
		p.endMetadata(name, text)
	}
}

func (p *parser) endMetadata(name xml.Name, text string) {
	switch name.Local {
	case "name":
		switch p.parent() {
		case "metadata", "gpx":
			if p.docName == "" {
				p.docName = text
			}
		case "trk":
			if p.tracks == 1 && p.firstTrackName == "" {
				p.firstTrackName = text
			}
		}
	case "type":
		if p.parent() == "trk" && p.tracks == 1 && p.firstTrackType == "" {
			p.firstTrackType = text
		}
	}
}

func (p *parser) endPoint(name xml.Name, text string) {
	pt := p.point
	switch name.Local {
	case "trkpt":
		if pt.HasData() {
			p.out.Points = append(p.out.Points, *pt)
		}
		p.point = nil
	case "ele":
		pt.Altitude = p.floatValue("ele", text)
	case "time":
		pt.Timestamp = p.timeValue(text)
	case "hr":
		pt.HeartRate = p.intValue("hr", text)
	case "cad":
		pt.Cadence = p.intValue("cad", text)
	case "atemp", "temp":
		pt.Temperature = p.intValue(name.Local, text)
	case "speed":
		pt.Speed = p.floatValue("speed", text)
	}
}

func (p *parser) endStats(name xml.Name, text string) {
	if name.Local == "TrackStatsExtension" && name.Space == TrackStatsNamespace {
		p.out.Summary = p.stats
		p.stats = nil
		return
	}
	if name.Space != TrackStatsNamespace {
		return
	}
	s := p.stats
	switch name.Local {
	case "Distance":
		s.TotalDistance = p.floatValue(name.Local, text)
	case "TimerTime":
		s.TotalTimerTime = p.truncatedValue(name.Local, text)
	case "TotalElapsedTime":
		s.TotalElapsedTime = p.truncatedValue(name.Local, text)
	case "MovingTime":
		s.MovingTime = p.truncatedValue(name.Local, text)
	case "MaxSpeed":
		s.MaxSpeed = p.floatValue(name.Local, text)
	case "Ascent":
		s.Ascent = p.floatValue(name.Local, text)
	case "Descent":
		s.Descent = p.floatValue(name.Local, text)
	case "Calories":
		s.Calories = p.intValue(name.Local, text)
	case "AvgHeartRate":
		s.AvgHeartRate = p.truncatedValue(name.Local, text)
	case "AvgCadence":
		s.AvgCadence = p.truncatedValue(name.Local, text)
	}
}

// parent returns the local name of the element enclosing the current one.
func (p *parser) parent() string {
	if len(p.stack) < 2 {
		return ""
	}
	return p.stack[len(p.stack)-2].Local
}

func (p *parser) coordinateAttr(el xml.StartElement, attr string, limit float64) (float64, bool) {
	for _, a := range el.Attr {
		if a.Name.Local != attr {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(a.Value), 64)
		if err != nil || math.IsNaN(v) || v < -limit || v > limit {
			p.warnf("trkpt %s %q ignored", attr, a.Value)
			return 0, false
		}
		return v, true
	}
	return 0, false
}

func (p *parser) floatValue(field, text string) *float64 {
	if text == "" {
		return nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		p.warnf("%s %q ignored", field, text)
		return nil
	}
	return &v
}

// intValue accepts "72" and "72.0" and truncates toward zero.
func (p *parser) intValue(field, text string) *int {
	f := p.floatValue(field, text)
	if f == nil {
		return nil
	}
	v := int(*f)
	return &v
}

func (p *parser) truncatedValue(field, text string) *float64 {
	i := p.intValue(field, text)
	if i == nil {
		return nil
	}
	v := float64(*i)
	return &v
}

func (p *parser) timeValue(text string) *time.Time {
	if text == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			t = t.UTC()
			return &t
		}
	}
	p.warnf("time %q ignored", text)
	return nil
}

func (p *parser) warnf(format string, args ...any) {
	p.out.Warnings = append(p.out.Warnings, fmt.Sprintf(format, args...))
}

// charsetReader transcodes the declared encoding to UTF-8 using the WHATWG
// label table, which covers ISO-8859-1 and windows-1252 writers.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(strings.TrimSpace(label))
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}
