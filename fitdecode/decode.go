// Package fitdecode reads FIT activity files into the decoder-neutral track model.
package fitdecode

import (
	"errors"
	"fmt"
	"time"

	"github.com/lucasjlepore/trackingest/logging"
	"github.com/lucasjlepore/trackingest/track"
)

// ErrMalformed is returned when the buffer cannot be framed as FIT.
var ErrMalformed = errors.New("malformed FIT file")

var fitEpoch = time.Date(1989, 12, 31, 0, 0, 0, 0, time.UTC)

// Options controls decoding.
type Options struct {
	// Location, when non-nil, reinterprets FIT wall-clock readings as local
	// time in that zone. Nil keeps FIT's native UTC.
	Location *time.Location
}

// Decode frames the buffer and projects session, record, activity and sport
// messages. Only framing errors abort; a bad record is skipped.
func Decode(data []byte, opts Options) (*track.Decoded, error) {
	out, err := parseFITBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	toTime := func(raw uint32) time.Time {
		t := fitEpoch.Add(time.Duration(raw) * time.Second)
		if opts.Location == nil {
			return t
		}
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, opts.Location)
	}

	decoded := &track.Decoded{}
	if out.headerCRC.present && !out.headerCRC.valid {
		decoded.Warnings = append(decoded.Warnings,
			fmt.Sprintf("header CRC mismatch: stored 0x%04X computed 0x%04X", out.headerCRC.stored, out.headerCRC.computed))
	}
	if !out.fileCRC.valid {
		decoded.Warnings = append(decoded.Warnings,
			fmt.Sprintf("file CRC mismatch: stored 0x%04X computed 0x%04X", out.fileCRC.stored, out.fileCRC.computed))
	}

	var (
		session  *SessionFields
		activity *ActivityFields
		sport    *SportFields
	)
	for _, m := range out.messages {
		switch m.globalNum {
		case mesgNumSession:
			if session != nil {
				continue
			}
			s, err := sessionFields(m, toTime)
			if err != nil {
				decoded.Warnings = append(decoded.Warnings, fmt.Sprintf("session message %d ignored: %v", m.index, err))
				continue
			}
			session = &s
		case mesgNumRecord:
			r, err := recordFields(m, toTime)
			if err != nil {
				decoded.Warnings = append(decoded.Warnings, fmt.Sprintf("record message %d skipped: %v", m.index, err))
				continue
			}
			if p := r.point(); p.HasData() {
				decoded.Points = append(decoded.Points, p)
			}
		case mesgNumActivity:
			if activity != nil {
				continue
			}
			a, err := activityFields(m, toTime)
			if err != nil {
				decoded.Warnings = append(decoded.Warnings, fmt.Sprintf("activity message %d ignored: %v", m.index, err))
				continue
			}
			activity = &a
		case mesgNumSport:
			if sport != nil {
				continue
			}
			s, err := sportFields(m)
			if err != nil {
				decoded.Warnings = append(decoded.Warnings, fmt.Sprintf("sport message %d ignored: %v", m.index, err))
				continue
			}
			sport = &s
		}
	}

	for _, w := range decoded.Warnings {
		logging.Warn().Str("format", "fit").Msg(w)
	}

	if session != nil {
		decoded.Summary = session.summary()
	} else if activity != nil && activity.TotalTimerTime != nil {
		decoded.Summary = &track.SessionSummary{TotalTimerTime: activity.TotalTimerTime}
	}

	switch {
	case session != nil && session.Sport != nil:
		decoded.Sport = sportToken(*session.Sport)
	case sport != nil && sport.Sport != nil:
		decoded.Sport = sportToken(*sport.Sport)
	}
	if decoded.Summary != nil {
		decoded.Summary.Sport = decoded.Sport
	}
	if sport != nil {
		decoded.Name = sport.Name
	}
	return decoded, nil
}

func (s SessionFields) summary() *track.SessionSummary {
	summary := &track.SessionSummary{
		TotalDistance:    s.TotalDistance,
		TotalElapsedTime: s.TotalElapsedTime,
		TotalTimerTime:   s.TotalTimerTime,
		MovingTime:       s.TotalMovingTime,
		MaxSpeed:         s.MaxSpeed,
		Calories:         s.TotalCalories,
		AvgHeartRate:     uint8Float(s.AvgHeartRate),
		AvgCadence:       uint8Float(s.AvgCadence),
		Ascent:           uint16Float(s.TotalAscent),
		Descent:          uint16Float(s.TotalDescent),
		Name:             s.SportProfileName,
	}
	return summary
}

func (r RecordFields) point() track.RawPoint {
	p := track.RawPoint{
		Timestamp: r.Timestamp,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Altitude:  r.Altitude,
		Speed:     r.Speed,
		Distance:  r.Distance,
	}
	if r.HeartRate != nil {
		hr := int(*r.HeartRate)
		p.HeartRate = &hr
	}
	if r.Cadence != nil {
		cad := int(*r.Cadence)
		p.Cadence = &cad
	}
	if r.Temperature != nil {
		temp := int(*r.Temperature)
		p.Temperature = &temp
	}
	return p
}

// sportToken maps a FIT sport code through the static table. Unknown codes
// yield the empty token.
func sportToken(code uint8) string {
	sport, ok := track.SportFromCode(code)
	if !ok {
		logging.Warn().Uint8("sport_code", code).Msg("unknown FIT sport code")
		return ""
	}
	return sport.String()
}

func uint8Float(v *uint8) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

func uint16Float(v *uint16) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}
