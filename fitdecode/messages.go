package fitdecode

import (
	"fmt"
	"math"
	"time"
)

// Global message numbers consumed by the decoder.
const (
	mesgNumSport    uint16 = 12
	mesgNumSession  uint16 = 18
	mesgNumRecord   uint16 = 20
	mesgNumActivity uint16 = 34
)

const semicirclesToDegrees = 180.0 / (1 << 31)

// SessionFields is the subset of the session message the decoder reads.
type SessionFields struct {
	Timestamp        *time.Time
	StartTime        *time.Time
	Sport            *uint8
	TotalElapsedTime *float64 // s
	TotalTimerTime   *float64 // s
	TotalMovingTime  *float64 // s
	TotalDistance    *float64 // m
	TotalCalories    *int     // kcal
	AvgSpeed         *float64 // m/s
	MaxSpeed         *float64 // m/s
	AvgHeartRate     *uint8
	AvgCadence       *uint8
	TotalAscent      *uint16 // m
	TotalDescent     *uint16 // m
	SportProfileName string
}

// RecordFields is the subset of the record message the decoder reads.
type RecordFields struct {
	Timestamp   *time.Time
	Latitude    *float64 // degrees
	Longitude   *float64 // degrees
	Altitude    *float64 // m
	HeartRate   *uint8
	Cadence     *uint8
	Distance    *float64 // m
	Speed       *float64 // m/s
	Temperature *int8    // C
}

// ActivityFields is the subset of the activity message the decoder reads.
type ActivityFields struct {
	Timestamp      *time.Time
	TotalTimerTime *float64 // s
	NumSessions    *uint16
	LocalTimestamp *time.Time
}

// SportFields is the subset of the sport message the decoder reads.
type SportFields struct {
	Sport *uint8
	Name  string
}

type timeFunc func(raw uint32) time.Time

func sessionFields(m message, toTime timeFunc) (SessionFields, error) {
	var (
		s   SessionFields
		err error
	)
	s.Timestamp = messageTime(m, toTime)
	if s.StartTime, err = m.timeField(2, toTime); err != nil {
		return s, err
	}
	if s.Sport, err = m.uint8Field(5); err != nil {
		return s, err
	}
	if s.TotalElapsedTime, err = m.scaledField(7, 1000, 0); err != nil {
		return s, err
	}
	if s.TotalTimerTime, err = m.scaledField(8, 1000, 0); err != nil {
		return s, err
	}
	if s.TotalDistance, err = m.scaledField(9, 100, 0); err != nil {
		return s, err
	}
	calories, err := m.unsignedField(11)
	if err != nil {
		return s, err
	}
	if calories != nil {
		c := int(*calories)
		s.TotalCalories = &c
	}
	if s.AvgSpeed, err = m.preferScaled(124, 14, 1000, 0); err != nil {
		return s, err
	}
	if s.MaxSpeed, err = m.preferScaled(125, 15, 1000, 0); err != nil {
		return s, err
	}
	if s.AvgHeartRate, err = m.uint8Field(16); err != nil {
		return s, err
	}
	if s.AvgCadence, err = m.uint8Field(18); err != nil {
		return s, err
	}
	if s.TotalAscent, err = m.uint16Field(22); err != nil {
		return s, err
	}
	if s.TotalDescent, err = m.uint16Field(23); err != nil {
		return s, err
	}
	if s.TotalMovingTime, err = m.scaledField(59, 1000, 0); err != nil {
		return s, err
	}
	s.SportProfileName = m.stringField(110)
	return s, nil
}

func recordFields(m message, toTime timeFunc) (RecordFields, error) {
	var (
		r   RecordFields
		err error
	)
	r.Timestamp = messageTime(m, toTime)

	lat, err := m.signedField(0)
	if err != nil {
		return r, err
	}
	lon, err := m.signedField(1)
	if err != nil {
		return r, err
	}
	// A point with only one coordinate is not georeferenced.
	if lat != nil && lon != nil {
		latDeg := float64(*lat) * semicirclesToDegrees
		lonDeg := float64(*lon) * semicirclesToDegrees
		if math.Abs(latDeg) > 90 || math.Abs(lonDeg) > 180 {
			return r, fmt.Errorf("position out of range: %f,%f", latDeg, lonDeg)
		}
		r.Latitude = &latDeg
		r.Longitude = &lonDeg
	}

	if r.Altitude, err = m.preferScaled(78, 2, 5, 500); err != nil {
		return r, err
	}
	if r.HeartRate, err = m.uint8Field(3); err != nil {
		return r, err
	}
	if r.Cadence, err = m.uint8Field(4); err != nil {
		return r, err
	}
	if r.Distance, err = m.scaledField(5, 100, 0); err != nil {
		return r, err
	}
	if r.Speed, err = m.preferScaled(73, 6, 1000, 0); err != nil {
		return r, err
	}
	temp, err := m.signedField(13)
	if err != nil {
		return r, err
	}
	if temp != nil {
		if *temp < math.MinInt8 || *temp > math.MaxInt8 {
			return r, fmt.Errorf("temperature out of range: %d", *temp)
		}
		t := int8(*temp)
		r.Temperature = &t
	}
	return r, nil
}

func activityFields(m message, toTime timeFunc) (ActivityFields, error) {
	var (
		a   ActivityFields
		err error
	)
	a.Timestamp = messageTime(m, toTime)
	if a.TotalTimerTime, err = m.scaledField(0, 1000, 0); err != nil {
		return a, err
	}
	if a.NumSessions, err = m.uint16Field(1); err != nil {
		return a, err
	}
	if a.LocalTimestamp, err = m.timeField(5, toTime); err != nil {
		return a, err
	}
	return a, nil
}

func sportFields(m message) (SportFields, error) {
	sport, err := m.uint8Field(0)
	if err != nil {
		return SportFields{}, err
	}
	return SportFields{Sport: sport, Name: m.stringField(3)}, nil
}

func messageTime(m message, toTime timeFunc) *time.Time {
	if m.timestamp == nil {
		return nil
	}
	t := toTime(*m.timestamp)
	return &t
}

// present returns the field when it exists, decoded cleanly and is not the
// base type's invalid sentinel.
func (m message) present(num uint8) (fieldValue, bool, error) {
	v, ok := m.fields[num]
	if !ok {
		return fieldValue{}, false, nil
	}
	if v.err != nil {
		return fieldValue{}, false, v.err
	}
	if v.invalid {
		return fieldValue{}, false, nil
	}
	return v, true, nil
}

func (m message) unsignedField(num uint8) (*uint64, error) {
	v, ok, err := m.present(num)
	if err != nil || !ok {
		return nil, err
	}
	switch baseSpecs[v.base].kind {
	case kindUnsigned:
		return &v.u, nil
	case kindSigned:
		if v.i < 0 {
			return nil, fmt.Errorf("field %d: negative value %d for unsigned field", num, v.i)
		}
		u := uint64(v.i)
		return &u, nil
	default:
		return nil, fmt.Errorf("field %d: unexpected %s value", num, baseSpecs[v.base].name)
	}
}

func (m message) signedField(num uint8) (*int64, error) {
	v, ok, err := m.present(num)
	if err != nil || !ok {
		return nil, err
	}
	switch baseSpecs[v.base].kind {
	case kindSigned:
		return &v.i, nil
	case kindUnsigned:
		if v.u > math.MaxInt64 {
			return nil, fmt.Errorf("field %d: value %d overflows signed field", num, v.u)
		}
		i := int64(v.u)
		return &i, nil
	default:
		return nil, fmt.Errorf("field %d: unexpected %s value", num, baseSpecs[v.base].name)
	}
}

func (m message) uint8Field(num uint8) (*uint8, error) {
	u, err := m.unsignedField(num)
	if err != nil || u == nil {
		return nil, err
	}
	if *u > math.MaxUint8 {
		return nil, fmt.Errorf("field %d: value %d overflows uint8", num, *u)
	}
	v := uint8(*u)
	return &v, nil
}

func (m message) uint16Field(num uint8) (*uint16, error) {
	u, err := m.unsignedField(num)
	if err != nil || u == nil {
		return nil, err
	}
	if *u > math.MaxUint16 {
		return nil, fmt.Errorf("field %d: value %d overflows uint16", num, *u)
	}
	v := uint16(*u)
	return &v, nil
}

// scaledField applies the profile's scale and offset: value/scale - offset.
func (m message) scaledField(num uint8, scale, offset float64) (*float64, error) {
	u, err := m.unsignedField(num)
	if err != nil || u == nil {
		return nil, err
	}
	v := float64(*u)/scale - offset
	return &v, nil
}

// preferScaled reads the enhanced field when present, else the legacy one.
func (m message) preferScaled(enhanced, legacy uint8, scale, offset float64) (*float64, error) {
	v, err := m.scaledField(enhanced, scale, offset)
	if err != nil || v != nil {
		return v, err
	}
	return m.scaledField(legacy, scale, offset)
}

func (m message) timeField(num uint8, toTime timeFunc) (*time.Time, error) {
	u, err := m.unsignedField(num)
	if err != nil || u == nil {
		return nil, err
	}
	if *u > math.MaxUint32 {
		return nil, fmt.Errorf("field %d: timestamp overflows uint32", num)
	}
	t := toTime(uint32(*u))
	return &t, nil
}

func (m message) stringField(num uint8) string {
	v, ok, err := m.present(num)
	if err != nil || !ok || baseSpecs[v.base].kind != kindString {
		return ""
	}
	return v.s
}
