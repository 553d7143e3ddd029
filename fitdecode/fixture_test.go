package fitdecode

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/tormoder/fit/dyncrc16"
)

// fitBuilder writes raw FIT messages so tests can produce files the profile
// encoder refuses to emit, such as records with broken field sizes.
type fitBuilder struct {
	data bytes.Buffer
}

type rawField struct {
	num  uint8
	size uint8
	base baseType
}

func (b *fitBuilder) define(local uint8, global uint16, fields ...rawField) {
	b.data.WriteByte(mesgDefinitionMask | local)
	b.data.WriteByte(0) // reserved
	b.data.WriteByte(0) // little endian
	_ = binary.Write(&b.data, binary.LittleEndian, global)
	b.data.WriteByte(uint8(len(fields)))
	for _, f := range fields {
		b.data.Write([]byte{f.num, f.size, uint8(f.base)})
	}
}

func (b *fitBuilder) message(local uint8, values ...any) {
	b.data.WriteByte(local)
	for _, v := range values {
		_ = binary.Write(&b.data, binary.LittleEndian, v)
	}
}

func (b *fitBuilder) compressed(local, offset uint8, values ...any) {
	b.data.WriteByte(compressedHeaderMask | (local << 5) | (offset & compressedTimeMask))
	for _, v := range values {
		_ = binary.Write(&b.data, binary.LittleEndian, v)
	}
}

func (b *fitBuilder) bytes(t *testing.T) []byte {
	t.Helper()

	var out bytes.Buffer
	out.WriteByte(headerSizeCRC)
	out.WriteByte(0x20)
	_ = binary.Write(&out, binary.LittleEndian, uint16(2132))
	_ = binary.Write(&out, binary.LittleEndian, uint32(b.data.Len()))
	out.WriteString(".FIT")
	_ = binary.Write(&out, binary.LittleEndian, dyncrc16.Checksum(out.Bytes()))
	out.Write(b.data.Bytes())
	_ = binary.Write(&out, binary.LittleEndian, dyncrc16.Checksum(out.Bytes()))
	return out.Bytes()
}

func fitTime(t time.Time) uint32 {
	return uint32(t.Sub(fitEpoch) / time.Second)
}

func semicircles(deg float64) int32 {
	return int32(deg / semicirclesToDegrees)
}

var recordDefinition = []rawField{
	{num: 253, size: 4, base: baseUint32},
	{num: 0, size: 4, base: baseSint32},
	{num: 1, size: 4, base: baseSint32},
	{num: 2, size: 2, base: baseUint16},
	{num: 3, size: 1, base: baseUint8},
	{num: 6, size: 2, base: baseUint16},
	{num: 13, size: 1, base: baseSint8},
}

var sessionDefinition = []rawField{
	{num: 253, size: 4, base: baseUint32},
	{num: 2, size: 4, base: baseUint32},
	{num: 5, size: 1, base: baseEnum},
	{num: 7, size: 4, base: baseUint32},
	{num: 9, size: 4, base: baseUint32},
	{num: 11, size: 2, base: baseUint16},
}
