package etw

import (
	"crypto/sha1" //nolint:gosec // ETW defines the name hash to be SHA1
	"encoding/binary"
	"strings"
	"unicode/utf16"

	"github.com/Microsoft/go-winio/pkg/guid"
	"go.opentelemetry.io/otel/trace"
)

// providerNamespace is the namespace GUID used by TraceLogging to hash provider names.
var providerNamespace = guid.GUID{
	Data1: 0x482C2DB2,
	Data2: 0xC390,
	Data3: 0x47C8,
	Data4: [8]byte{0x87, 0xF8, 0x1A, 0x15, 0xBF, 0xC1, 0x30, 0xFB},
}

// ProviderID returns the GUID ETW derives from a TraceLogging provider name.
//
// Trace consumers (eg, `wpr` or `logman`) can enable the provider either by name (prefixed with '*')
// or by this GUID.
// Names are case-insensitive.
func ProviderID(name string) guid.GUID {
	h := sha1.New() //nolint:gosec
	ns := providerNamespace.ToArray()
	h.Write(ns[:])
	_ = binary.Write(h, binary.BigEndian, utf16.Encode([]rune(strings.ToUpper(name))))
	sum := h.Sum(nil)
	sum[7] = (sum[7] & 0xf) | 0x50

	var a [16]byte
	copy(a[:], sum)
	return guid.FromWindowsArray(a)
}

// SpanIDToActivityID converts an 8 byte span ID to 16 byte Activity ID (GUID) by zero padding last 8 bytes.
// this is mostly cosmetic, and allows quickly searching for span IDs using activity id.
// This does not propagate activity ID to win32 calls, since that requires setting the thread activity ID
// using `EventActivityIdControl`.
//
// While the [W3C] recommends zero-padding on the left when creating trace IDs from smaller identifiers,
// it does not give recomendations for converting or padding span ID.
// Therefore, the [C++ ETW OTel] convention of right-padding the span ID with zeros is used.
//
// [W3C]: https://www.w3.org/TR/trace-context/#interoperating-with-existing-systems-which-use-shorter-identifiers
// [C++ ETW OTel]: https://github.com/open-telemetry/opentelemetry-cpp/blob/7cb7654552d68936d70986bc2ee67f3cc3e0b469/exporters/etw/include/opentelemetry/exporters/etw/etw_config.h#L197
func SpanIDToActivityID(spanID trace.SpanID) guid.GUID {
	if !spanID.IsValid() {
		return guid.GUID{}
	}

	var x [16]byte
	copy(x[:], spanID[:])
	return guid.FromArray(x)
}
