// Package relation decodes the tag-encoded columnar relation format used
// for SQL query result sets (spec §4.6, §6.2). It is a byte-oriented,
// lazy, timeout-aware value stream over a DataChannel.
package relation

// EntryType is the logical type of one decoded tag entry.
type EntryType int

const (
	Nothing EntryType = iota
	EndOfContents
	Null
	Int
	Float4
	Float8
	Decimal
	Character
	Octet
	Bit
	Date
	TimeOfDay
	TimePoint
	TimeOfDayWithTimeZone
	TimePointWithTimeZone
	DatetimeInterval
	Row
	Array
	Clob
	Blob
)

func (t EntryType) String() string {
	switch t {
	case Nothing:
		return "Nothing"
	case EndOfContents:
		return "EndOfContents"
	case Null:
		return "Null"
	case Int:
		return "Int"
	case Float4:
		return "Float4"
	case Float8:
		return "Float8"
	case Decimal:
		return "Decimal"
	case Character:
		return "Character"
	case Octet:
		return "Octet"
	case Bit:
		return "Bit"
	case Date:
		return "Date"
	case TimeOfDay:
		return "TimeOfDay"
	case TimePoint:
		return "TimePoint"
	case TimeOfDayWithTimeZone:
		return "TimeOfDayWithTimeZone"
	case TimePointWithTimeZone:
		return "TimePointWithTimeZone"
	case DatetimeInterval:
		return "DatetimeInterval"
	case Row:
		return "Row"
	case Array:
		return "Array"
	case Clob:
		return "Clob"
	case Blob:
		return "Blob"
	default:
		return "Nothing"
	}
}

// Tag byte layout (spec §4.6, §6.2). The embed categories are selected by
// the high bits of the tag byte; independent entries live in
// 0xE8..0xFF and are looked up in independentEntryType.
const (
	headerEmbedPositiveInt = 0x00
	headerEmbedCharacter   = 0x40
	headerEmbedRow         = 0x80
	headerEmbedArray       = 0xa0
	headerEmbedNegativeInt = 0xc0
	headerEmbedOctet       = 0xd0
	headerEmbedBit         = 0xe0

	headerUnknown        = 0xe8
	headerInt            = 0xe9
	headerDecimalCompact = 0xec
	headerDecimalFull    = 0xed
	headerCharacter      = 0xf0
	headerRow            = 0xf8

	maskEmbedPositiveInt = 0x3f
	maskEmbedCharacter   = 0x3f
	maskEmbedRow         = 0x1f
	maskEmbedArray       = 0x1f
	maskEmbedNegativeInt = 0x0f
	maskEmbedOctet       = 0x0f
	maskEmbedBit         = 0x07

	minEmbedPositiveIntValue = 0
	minEmbedNegativeIntValue = -(maskEmbedNegativeInt + 1)
	minEmbedCharacterSize    = 1
	minEmbedRowSize          = 1

	offsetIndependentEntryType = -headerUnknown
)

// independentEntryType is the bit-exact 24-entry table for tag bytes
// 0xE8..0xFF (spec §4.6, §9: "any implementer must reproduce it including
// the gaps for reserved tags"). Nothing marks a reserved/unsupported tag,
// which must fail decoding with a broken-encoding error.
var independentEntryType = [24]EntryType{
	Null,                  // 0xe8
	Int,                   // 0xe9
	Float4,                // 0xea
	Float8,                // 0xeb
	Decimal,               // 0xec (compact)
	Decimal,               // 0xed (full)
	TimeOfDayWithTimeZone, // 0xee
	TimePointWithTimeZone, // 0xef
	Character,             // 0xf0
	Octet,                 // 0xf1
	Bit,                   // 0xf2
	Date,                  // 0xf3
	TimeOfDay,             // 0xf4
	TimePoint,             // 0xf5
	DatetimeInterval,      // 0xf6
	Nothing,               // 0xf7 reserved
	Row,                   // 0xf8
	Array,                 // 0xf9
	Clob,                  // 0xfa (unsupported by skip())
	Blob,                  // 0xfb (unsupported by skip())
	Nothing,               // 0xfc reserved
	Nothing,               // 0xfd reserved
	EndOfContents,         // 0xfe
	Nothing,               // 0xff reserved
}
