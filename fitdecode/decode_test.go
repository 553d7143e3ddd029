package fitdecode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/tormoder/fit"
)

func TestDecodeEncodedActivity(t *testing.T) {
	data := buildTestFIT(t)

	decoded, err := Decode(data, Options{})
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}

	if decoded.Summary == nil {
		t.Fatal("expected session summary")
	}
	if decoded.Summary.Calories == nil || *decoded.Summary.Calories != 812 {
		t.Fatalf("unexpected calories: %v", decoded.Summary.Calories)
	}
	if decoded.Summary.TotalDistance == nil || *decoded.Summary.TotalDistance != 5000 {
		t.Fatalf("unexpected distance: %v", decoded.Summary.TotalDistance)
	}
	if decoded.Sport != "running" || decoded.Summary.Sport != "running" {
		t.Fatalf("unexpected sport: %q / %q", decoded.Sport, decoded.Summary.Sport)
	}
	if len(decoded.Points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(decoded.Points))
	}

	first := decoded.Points[0]
	if first.Latitude == nil || math.Abs(*first.Latitude-44.0) > 1e-6 {
		t.Fatalf("unexpected latitude: %v", first.Latitude)
	}
	if first.Longitude == nil || math.Abs(*first.Longitude+110.0) > 1e-6 {
		t.Fatalf("unexpected longitude: %v", first.Longitude)
	}
	if first.Altitude == nil || *first.Altitude != 1500 {
		t.Fatalf("unexpected altitude: %v", first.Altitude)
	}
	if first.Speed == nil || *first.Speed != 2.5 {
		t.Fatalf("unexpected speed: %v", first.Speed)
	}
	if first.HeartRate == nil || *first.HeartRate != 135 {
		t.Fatalf("unexpected heart rate: %v", first.HeartRate)
	}
	want := time.Date(2026, 2, 26, 23, 0, 0, 0, time.UTC)
	if first.Timestamp == nil || !first.Timestamp.Equal(want) {
		t.Fatalf("unexpected timestamp: %v", first.Timestamp)
	}
	if first.Timestamp.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", first.Timestamp.Location())
	}

	// The third record has no position but still carries heart rate.
	last := decoded.Points[2]
	if last.HasPosition() || last.HeartRate == nil {
		t.Fatalf("unexpected unpositioned point: %+v", last)
	}
	if len(decoded.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", decoded.Warnings)
	}
}

func TestDecodeSkipsMalformedRecord(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var b fitBuilder
	b.define(0, mesgNumRecord, recordDefinition...)
	b.message(0, fitTime(start), semicircles(44.0), semicircles(-110.0), uint16(12500), uint8(120), uint16(1500), int8(18))
	// Local 1 declares a sint32 latitude with a 3-byte size.
	b.define(1, mesgNumRecord,
		rawField{num: 253, size: 4, base: baseUint32},
		rawField{num: 0, size: 3, base: baseSint32},
	)
	b.message(1, fitTime(start.Add(time.Second)), []byte{1, 2, 3})
	b.message(0, fitTime(start.Add(2*time.Second)), semicircles(44.1), semicircles(-110.1), uint16(12550), uint8(121), uint16(1600), int8(18))

	decoded, err := Decode(b.bytes(t), Options{})
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if len(decoded.Points) != 2 {
		t.Fatalf("expected 2 points after skipping the bad record, got %d", len(decoded.Points))
	}
	if len(decoded.Warnings) != 1 || !strings.Contains(decoded.Warnings[0], "record message") {
		t.Fatalf("unexpected warnings: %v", decoded.Warnings)
	}
	if *decoded.Points[0].Altitude != 2000 {
		t.Fatalf("unexpected altitude: %v", *decoded.Points[0].Altitude)
	}
	if *decoded.Points[0].Temperature != 18 {
		t.Fatalf("unexpected temperature: %v", *decoded.Points[0].Temperature)
	}
	if decoded.Summary != nil {
		t.Fatalf("expected no summary without a session, got %+v", decoded.Summary)
	}
}

func TestDecodeInvalidSentinelsBecomeNil(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var b fitBuilder
	b.define(0, mesgNumRecord, recordDefinition...)
	b.message(0, fitTime(start), int32(0x7FFFFFFF), semicircles(-110.0), uint16(0xFFFF), uint8(0xFF), uint16(0xFFFF), int8(0x7F))

	decoded, err := Decode(b.bytes(t), Options{})
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if len(decoded.Points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(decoded.Points))
	}
	p := decoded.Points[0]
	if p.Latitude != nil || p.Longitude != nil {
		t.Fatal("a record missing latitude must not keep a longitude")
	}
	if p.Altitude != nil || p.HeartRate != nil || p.Speed != nil || p.Temperature != nil {
		t.Fatalf("expected invalid sentinels to decode as nil: %+v", p)
	}
	if p.Timestamp == nil {
		t.Fatal("expected timestamp")
	}
}

func TestDecodeCompressedTimestamps(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	raw := fitTime(start)

	var b fitBuilder
	b.define(0, mesgNumRecord,
		rawField{num: 253, size: 4, base: baseUint32},
		rawField{num: 3, size: 1, base: baseUint8},
	)
	b.message(0, raw, uint8(100))
	b.define(1, mesgNumRecord, rawField{num: 3, size: 1, base: baseUint8})
	b.compressed(1, uint8((raw+5)&compressedTimeMask), uint8(101))
	b.compressed(1, uint8((raw+40)&compressedTimeMask), uint8(102))

	decoded, err := Decode(b.bytes(t), Options{})
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if len(decoded.Points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(decoded.Points))
	}
	if got := decoded.Points[1].Timestamp; got == nil || !got.Equal(start.Add(5*time.Second)) {
		t.Fatalf("unexpected compressed timestamp: %v", got)
	}
	// 40s wraps the 5-bit offset once, so only 8s of it is recoverable.
	if got := decoded.Points[2].Timestamp; got == nil || !got.Equal(start.Add(8*time.Second)) {
		t.Fatalf("unexpected rollover timestamp: %v", got)
	}
}

func TestDecodeSessionSportMapping(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		code uint8
		want string
	}{
		{code: 1, want: "running"},
		{code: 17, want: "hiking"},
		{code: 200, want: ""},
	}
	for _, tc := range cases {
		var b fitBuilder
		b.define(0, mesgNumRecord, rawField{num: 253, size: 4, base: baseUint32})
		b.message(0, fitTime(start))
		b.define(1, mesgNumSession, sessionDefinition...)
		b.message(1, fitTime(start.Add(time.Hour)), fitTime(start), tc.code, uint32(3600000), uint32(1234567), uint16(812))

		decoded, err := Decode(b.bytes(t), Options{})
		if err != nil {
			t.Fatalf("Decode error: %v", err)
		}
		if decoded.Sport != tc.want {
			t.Fatalf("sport code %d = %q, want %q", tc.code, decoded.Sport, tc.want)
		}
		if *decoded.Summary.TotalElapsedTime != 3600 || *decoded.Summary.TotalDistance != 12345.67 {
			t.Fatalf("unexpected summary: %+v", decoded.Summary)
		}
	}
}

func TestDecodeFirstSessionWins(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var b fitBuilder
	b.define(0, mesgNumRecord, rawField{num: 253, size: 4, base: baseUint32})
	b.message(0, fitTime(start))
	b.define(1, mesgNumSession, sessionDefinition...)
	b.message(1, fitTime(start), fitTime(start), uint8(1), uint32(1000), uint32(100), uint16(812))
	b.message(1, fitTime(start), fitTime(start), uint8(2), uint32(2000), uint32(200), uint16(999))

	decoded, err := Decode(b.bytes(t), Options{})
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if *decoded.Summary.Calories != 812 || decoded.Sport != "running" {
		t.Fatalf("expected first session to win: %+v", decoded.Summary)
	}
}

func TestDecodeNamesFromSportMessage(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var b fitBuilder
	b.define(0, mesgNumSport,
		rawField{num: 0, size: 1, base: baseEnum},
		rawField{num: 3, size: 16, base: baseString},
	)
	name := make([]byte, 16)
	copy(name, "Trail Run")
	b.message(0, uint8(1), name)
	b.define(1, mesgNumRecord, rawField{num: 253, size: 4, base: baseUint32})
	b.message(1, fitTime(start))

	decoded, err := Decode(b.bytes(t), Options{})
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if decoded.Name != "Trail Run" || decoded.Sport != "running" {
		t.Fatalf("unexpected name/sport: %q/%q", decoded.Name, decoded.Sport)
	}
}

func TestDecodeActivityTimerWithoutSession(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var b fitBuilder
	b.define(0, mesgNumRecord, rawField{num: 253, size: 4, base: baseUint32})
	b.message(0, fitTime(start))
	b.define(1, mesgNumActivity,
		rawField{num: 253, size: 4, base: baseUint32},
		rawField{num: 0, size: 4, base: baseUint32},
		rawField{num: 1, size: 2, base: baseUint16},
	)
	b.message(1, fitTime(start), uint32(42500), uint16(1))

	decoded, err := Decode(b.bytes(t), Options{})
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if decoded.Summary == nil || decoded.Summary.TotalTimerTime == nil || *decoded.Summary.TotalTimerTime != 42.5 {
		t.Fatalf("expected timer from activity message, got %+v", decoded.Summary)
	}
}

func TestDecodeLocation(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var b fitBuilder
	b.define(0, mesgNumRecord, rawField{num: 253, size: 4, base: baseUint32})
	b.message(0, fitTime(start))

	zone := time.FixedZone("MDT", -6*3600)
	decoded, err := Decode(b.bytes(t), Options{Location: zone})
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	got := *decoded.Points[0].Timestamp
	if got.Hour() != 12 || got.Location() != zone {
		t.Fatalf("expected wall clock kept in zone, got %v", got)
	}
	if !got.Equal(start.Add(6 * time.Hour)) {
		t.Fatalf("unexpected absolute instant: %v", got.UTC())
	}
}

func TestDecodeCRCMismatchIsWarning(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var b fitBuilder
	b.define(0, mesgNumRecord, rawField{num: 253, size: 4, base: baseUint32})
	b.message(0, fitTime(start))
	data := b.bytes(t)
	data[len(data)-1] ^= 0xFF

	decoded, err := Decode(data, Options{})
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if len(decoded.Warnings) != 1 || !strings.Contains(decoded.Warnings[0], "file CRC") {
		t.Fatalf("unexpected warnings: %v", decoded.Warnings)
	}
}

func TestDecodeFramingErrors(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var b fitBuilder
	b.define(0, mesgNumRecord, recordDefinition...)
	b.message(0, fitTime(start), semicircles(44.0), semicircles(-110.0), uint16(2500), uint8(120), uint16(1500), int8(18))
	valid := b.bytes(t)

	var missing fitBuilder
	missing.message(3, uint32(0))

	badSignature := append([]byte(nil), valid...)
	copy(badSignature[8:12], ".GPX")

	cases := map[string][]byte{
		"empty":              nil,
		"truncated":          valid[:len(valid)-10],
		"bad signature":      badSignature,
		"missing definition": missing.bytes(t),
		"not fit":            []byte(`<?xml version="1.0"?><gpx></gpx>`),
	}
	for name, data := range cases {
		if _, err := Decode(data, Options{}); !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
}

func buildTestFIT(t *testing.T) []byte {
	t.Helper()

	header := fit.NewHeader(fit.V20, true)
	file, err := fit.NewFile(fit.FileTypeActivity, header)
	if err != nil {
		t.Fatalf("new fit file: %v", err)
	}

	activity, err := file.Activity()
	if err != nil {
		t.Fatalf("activity accessor: %v", err)
	}

	start := time.Date(2026, 2, 26, 23, 0, 0, 0, time.UTC)
	for i, pos := range [][2]float64{{44.0, -110.0}, {44.001, -110.001}} {
		record := fit.NewRecordMsg()
		record.Timestamp = start.Add(time.Duration(i) * time.Second)
		record.PositionLat = fit.NewLatitudeDegrees(pos[0])
		record.PositionLong = fit.NewLongitudeDegrees(pos[1])
		record.Altitude = uint16((1500 + 500) * 5)
		record.Speed = 2500
		record.Distance = uint32(i * 250)
		record.HeartRate = 135
		record.Cadence = 88
		activity.Records = append(activity.Records, record)
	}

	noFix := fit.NewRecordMsg()
	noFix.Timestamp = start.Add(2 * time.Second)
	noFix.HeartRate = 140
	activity.Records = append(activity.Records, noFix)

	session := fit.NewSessionMsg()
	session.Timestamp = start.Add(3 * time.Second)
	session.StartTime = start
	session.Sport = fit.SportRunning
	session.TotalCalories = 812
	session.TotalDistance = 500000
	activity.Sessions = append(activity.Sessions, session)

	var buf bytes.Buffer
	if err := fit.Encode(&buf, file, binary.LittleEndian); err != nil {
		t.Fatalf("encode fit: %v", err)
	}
	return buf.Bytes()
}
