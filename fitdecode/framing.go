package fitdecode

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tormoder/fit/dyncrc16"
)

const (
	compressedHeaderMask       = 0x80
	compressedLocalMesgNumMask = 0x60
	compressedTimeMask         = 0x1F
	mesgDefinitionMask         = 0x40
	devDataMask                = 0x20
	localMesgNumMask           = 0x0F

	headerSizeNoCRC = 12
	headerSizeCRC   = 14

	timestampFieldNum = 253
)

type baseType uint8

const (
	baseEnum    baseType = 0x00
	baseSint8   baseType = 0x01
	baseUint8   baseType = 0x02
	baseSint16  baseType = 0x83
	baseUint16  baseType = 0x84
	baseSint32  baseType = 0x85
	baseUint32  baseType = 0x86
	baseString  baseType = 0x07
	baseFloat32 baseType = 0x88
	baseFloat64 baseType = 0x89
	baseUint8z  baseType = 0x0A
	baseUint16z baseType = 0x8B
	baseUint32z baseType = 0x8C
	baseByte    baseType = 0x0D
	baseSint64  baseType = 0x8E
	baseUint64  baseType = 0x8F
	baseUint64z baseType = 0x90
)

type valueKind uint8

const (
	kindUnsigned valueKind = iota
	kindSigned
	kindFloat
	kindString
	kindBytes
)

type baseSpec struct {
	name string
	size int
	kind valueKind
}

var baseSpecs = map[baseType]baseSpec{
	baseEnum:    {name: "enum", size: 1, kind: kindUnsigned},
	baseSint8:   {name: "sint8", size: 1, kind: kindSigned},
	baseUint8:   {name: "uint8", size: 1, kind: kindUnsigned},
	baseSint16:  {name: "sint16", size: 2, kind: kindSigned},
	baseUint16:  {name: "uint16", size: 2, kind: kindUnsigned},
	baseSint32:  {name: "sint32", size: 4, kind: kindSigned},
	baseUint32:  {name: "uint32", size: 4, kind: kindUnsigned},
	baseString:  {name: "string", size: 1, kind: kindString},
	baseFloat32: {name: "float32", size: 4, kind: kindFloat},
	baseFloat64: {name: "float64", size: 8, kind: kindFloat},
	baseUint8z:  {name: "uint8z", size: 1, kind: kindUnsigned},
	baseUint16z: {name: "uint16z", size: 2, kind: kindUnsigned},
	baseUint32z: {name: "uint32z", size: 4, kind: kindUnsigned},
	baseByte:    {name: "byte", size: 1, kind: kindBytes},
	baseSint64:  {name: "sint64", size: 8, kind: kindSigned},
	baseUint64:  {name: "uint64", size: 8, kind: kindUnsigned},
	baseUint64z: {name: "uint64z", size: 8, kind: kindUnsigned},
}

type fieldDef struct {
	number uint8
	size   uint8
	base   baseType
}

type localDefinition struct {
	globalNum    uint16
	arch         binary.ByteOrder
	fields       []fieldDef
	devFieldSize int
}

// fieldValue is the first element of a decoded field. Array fields keep only
// their first element; none of the consumed fields are arrays.
type fieldValue struct {
	base    baseType
	u       uint64
	i       int64
	f       float64
	s       string
	invalid bool
	err     error
}

// message is one decoded data message with its fields keyed by field number.
type message struct {
	index     int
	offset    int64
	globalNum uint16
	fields    map[uint8]fieldValue
	// timestamp is field 253 or the value reconstructed from a compressed header.
	timestamp *uint32
}

type header struct {
	size            uint8
	protocolVersion uint8
	profileVersion  uint16
	dataSize        uint32
	dataType        string
}

type crcCheck struct {
	present  bool
	stored   uint16
	computed uint16
	valid    bool
}

type parseOutput struct {
	header    header
	headerCRC crcCheck
	fileCRC   crcCheck
	messages  []message
	leftover  int
}

type parseState struct {
	dataOffset     int
	fileData       []byte
	definitions    map[uint8]localDefinition
	lastTimestamp  uint32
	lastTimeOffset int32
	messages       []message
}

func parseFITBytes(data []byte) (*parseOutput, error) {
	if len(data) < headerSizeNoCRC+2 {
		return nil, fmt.Errorf("fit file too short: %d bytes", len(data))
	}

	h, headerCRC, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	dataStart := int(h.size)
	dataEnd := dataStart + int(h.dataSize)
	required := dataEnd + 2
	if len(data) < required {
		return nil, fmt.Errorf("fit file truncated: have %d bytes, need at least %d", len(data), required)
	}

	stored := binary.LittleEndian.Uint16(data[dataEnd:required])
	computed := dyncrc16.Checksum(data[:dataEnd])
	fileCRC := crcCheck{
		present:  true,
		stored:   stored,
		computed: computed,
		valid:    stored == computed,
	}

	ps := &parseState{
		dataOffset:  dataStart,
		fileData:    data[dataStart:dataEnd],
		definitions: make(map[uint8]localDefinition),
	}
	if err := ps.parseRecords(); err != nil {
		return nil, err
	}

	return &parseOutput{
		header:    h,
		headerCRC: headerCRC,
		fileCRC:   fileCRC,
		messages:  ps.messages,
		leftover:  len(data) - required,
	}, nil
}

func parseHeader(data []byte) (header, crcCheck, error) {
	size := data[0]
	if size != headerSizeNoCRC && size != headerSizeCRC {
		return header{}, crcCheck{}, fmt.Errorf("invalid fit header size: %d", size)
	}
	if len(data) < int(size) {
		return header{}, crcCheck{}, fmt.Errorf("truncated fit header: need %d bytes", size)
	}

	h := header{
		size:            size,
		protocolVersion: data[1],
		profileVersion:  binary.LittleEndian.Uint16(data[2:4]),
		dataSize:        binary.LittleEndian.Uint32(data[4:8]),
		dataType:        string(data[8:12]),
	}
	if h.dataType != ".FIT" {
		return header{}, crcCheck{}, fmt.Errorf("invalid fit data type in header: %q", h.dataType)
	}

	check := crcCheck{present: size == headerSizeCRC, valid: true}
	if size == headerSizeCRC {
		check.stored = binary.LittleEndian.Uint16(data[12:14])
		// A stored value of zero means the writer skipped the header CRC.
		if check.stored != 0 {
			check.computed = dyncrc16.Checksum(data[:12])
			check.valid = check.stored == check.computed
		}
	}
	return h, check, nil
}

func (ps *parseState) parseRecords() error {
	pos := 0
	recordIndex := 0
	for pos < len(ps.fileData) {
		recordIndex++
		start := pos
		headerByte := ps.fileData[pos]
		pos++

		switch {
		case (headerByte & compressedHeaderMask) == compressedHeaderMask:
			local := (headerByte & compressedLocalMesgNumMask) >> 5
			def, ok := ps.definitions[local]
			if !ok {
				return fmt.Errorf("missing definition for compressed data message local=%d record=%d", local, recordIndex)
			}
			msg, newPos, err := ps.parseDataRecord(recordIndex, start, pos, headerByte, def, true)
			if err != nil {
				return err
			}
			ps.messages = append(ps.messages, msg)
			pos = newPos
		case (headerByte & mesgDefinitionMask) == mesgDefinitionMask:
			local, def, newPos, err := ps.parseDefinitionRecord(recordIndex, start, pos, headerByte)
			if err != nil {
				return err
			}
			ps.definitions[local] = def
			pos = newPos
		default:
			local := headerByte & localMesgNumMask
			def, ok := ps.definitions[local]
			if !ok {
				return fmt.Errorf("missing definition for data message local=%d record=%d", local, recordIndex)
			}
			msg, newPos, err := ps.parseDataRecord(recordIndex, start, pos, headerByte, def, false)
			if err != nil {
				return err
			}
			ps.messages = append(ps.messages, msg)
			pos = newPos
		}
	}
	return nil
}

func (ps *parseState) parseDefinitionRecord(recordIndex, startOffset, pos int, headerByte uint8) (uint8, localDefinition, int, error) {
	read := func(n int) ([]byte, error) {
		if pos+n > len(ps.fileData) {
			return nil, fmt.Errorf("definition record truncated at byte %d", ps.dataOffset+startOffset)
		}
		out := ps.fileData[pos : pos+n]
		pos += n
		return out, nil
	}

	local := headerByte & localMesgNumMask
	fixed, err := read(5) // reserved, architecture, global number, field count
	if err != nil {
		return 0, localDefinition{}, 0, err
	}

	var arch binary.ByteOrder
	switch fixed[1] {
	case 0:
		arch = binary.LittleEndian
	case 1:
		arch = binary.BigEndian
	default:
		return 0, localDefinition{}, 0, fmt.Errorf("invalid architecture byte %d at record %d", fixed[1], recordIndex)
	}

	def := localDefinition{
		globalNum: arch.Uint16(fixed[2:4]),
		arch:      arch,
		fields:    make([]fieldDef, 0, int(fixed[4])),
	}
	for i := 0; i < int(fixed[4]); i++ {
		raw, err := read(3)
		if err != nil {
			return 0, localDefinition{}, 0, err
		}
		def.fields = append(def.fields, fieldDef{
			number: raw[0],
			size:   raw[1],
			base:   decompressBaseType(raw[2]),
		})
	}

	if (headerByte & devDataMask) == devDataMask {
		countRaw, err := read(1)
		if err != nil {
			return 0, localDefinition{}, 0, err
		}
		for i := 0; i < int(countRaw[0]); i++ {
			raw, err := read(3)
			if err != nil {
				return 0, localDefinition{}, 0, err
			}
			def.devFieldSize += int(raw[1])
		}
	}

	return local, def, pos, nil
}

func (ps *parseState) parseDataRecord(recordIndex, startOffset, pos int, headerByte uint8, def localDefinition, compressed bool) (message, int, error) {
	read := func(n int) ([]byte, error) {
		if pos+n > len(ps.fileData) {
			return nil, fmt.Errorf("data record %d truncated at byte %d", recordIndex, ps.dataOffset+startOffset)
		}
		out := ps.fileData[pos : pos+n]
		pos += n
		return out, nil
	}

	msg := message{
		index:     recordIndex,
		offset:    int64(ps.dataOffset + startOffset),
		globalNum: def.globalNum,
		fields:    make(map[uint8]fieldValue, len(def.fields)),
	}

	if compressed && ps.lastTimestamp != 0 {
		timeOffset := int32(headerByte & compressedTimeMask)
		ps.lastTimestamp += uint32((timeOffset - ps.lastTimeOffset) & int32(compressedTimeMask))
		ps.lastTimeOffset = timeOffset
		ts := ps.lastTimestamp
		msg.timestamp = &ts
	}

	for _, fd := range def.fields {
		raw, err := read(int(fd.size))
		if err != nil {
			return message{}, 0, err
		}
		value := decodeField(raw, fd, def.arch)
		msg.fields[fd.number] = value
		if fd.number == timestampFieldNum && value.err == nil && !value.invalid {
			ts := uint32(value.u)
			ps.lastTimestamp = ts
			ps.lastTimeOffset = int32(ts & compressedTimeMask)
			msg.timestamp = &ts
		}
	}

	if def.devFieldSize > 0 {
		if _, err := read(def.devFieldSize); err != nil {
			return message{}, 0, err
		}
	}
	return msg, pos, nil
}

func decodeField(raw []byte, fd fieldDef, arch binary.ByteOrder) fieldValue {
	spec, ok := baseSpecs[fd.base]
	if !ok {
		return fieldValue{base: fd.base, err: fmt.Errorf("field %d: unknown base type 0x%02X", fd.number, uint8(fd.base))}
	}

	switch spec.kind {
	case kindString:
		s := decodeNullTerminatedString(raw)
		return fieldValue{base: fd.base, s: s, invalid: s == ""}
	case kindBytes:
		return fieldValue{base: fd.base, invalid: allBytes(raw, 0xFF)}
	}

	if len(raw) == 0 || len(raw)%spec.size != 0 {
		return fieldValue{
			base: fd.base,
			err:  fmt.Errorf("field %d: size %d not divisible by %s size %d", fd.number, len(raw), spec.name, spec.size),
		}
	}
	return decodeSingleValue(raw[:spec.size], fd.base, arch)
}

func decodeSingleValue(raw []byte, bt baseType, arch binary.ByteOrder) fieldValue {
	v := fieldValue{base: bt}
	switch bt {
	case baseEnum, baseUint8:
		v.u = uint64(raw[0])
		v.invalid = raw[0] == 0xFF
	case baseUint8z:
		v.u = uint64(raw[0])
		v.invalid = raw[0] == 0x00
	case baseSint8:
		v.i = int64(int8(raw[0]))
		v.invalid = v.i == 0x7F
	case baseSint16:
		v.i = int64(int16(arch.Uint16(raw)))
		v.invalid = v.i == 0x7FFF
	case baseUint16:
		v.u = uint64(arch.Uint16(raw))
		v.invalid = v.u == 0xFFFF
	case baseUint16z:
		v.u = uint64(arch.Uint16(raw))
		v.invalid = v.u == 0
	case baseSint32:
		v.i = int64(int32(arch.Uint32(raw)))
		v.invalid = v.i == 0x7FFFFFFF
	case baseUint32:
		v.u = uint64(arch.Uint32(raw))
		v.invalid = v.u == 0xFFFFFFFF
	case baseUint32z:
		v.u = uint64(arch.Uint32(raw))
		v.invalid = v.u == 0
	case baseFloat32:
		bits := arch.Uint32(raw)
		v.f = float64(math.Float32frombits(bits))
		v.invalid = bits == 0xFFFFFFFF
	case baseFloat64:
		bits := arch.Uint64(raw)
		v.f = math.Float64frombits(bits)
		v.invalid = bits == 0xFFFFFFFFFFFFFFFF
	case baseSint64:
		v.i = int64(arch.Uint64(raw))
		v.invalid = v.i == 0x7FFFFFFFFFFFFFFF
	case baseUint64:
		v.u = arch.Uint64(raw)
		v.invalid = v.u == 0xFFFFFFFFFFFFFFFF
	case baseUint64z:
		v.u = arch.Uint64(raw)
		v.invalid = v.u == 0
	}
	return v
}

func decodeNullTerminatedString(raw []byte) string {
	for i := 0; i < len(raw); i++ {
		if raw[i] == 0x00 {
			return string(raw[:i])
		}
	}
	return string(raw)
}

func allBytes(raw []byte, value byte) bool {
	if len(raw) == 0 {
		return false
	}
	for _, b := range raw {
		if b != value {
			return false
		}
	}
	return true
}

func decompressBaseType(b byte) baseType {
	switch b & 0x1F {
	case 0x03:
		return baseSint16
	case 0x04:
		return baseUint16
	case 0x05:
		return baseSint32
	case 0x06:
		return baseUint32
	case 0x08:
		return baseFloat32
	case 0x09:
		return baseFloat64
	case 0x0B:
		return baseUint16z
	case 0x0C:
		return baseUint32z
	case 0x0E:
		return baseSint64
	case 0x0F:
		return baseUint64
	case 0x10:
		return baseUint64z
	default:
		return baseType(b & 0x1F)
	}
}
